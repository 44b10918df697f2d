package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"logwarden/internal/types"
)

// MemoryStore provides a threadsafe in-memory Store keyed by a generated UUID
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]Row
	now    func() time.Time
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[uuid.UUID]Row),
		now:  time.Now,
	}
}

func (s *MemoryStore) Insert(ctx context.Context, rec types.Record) error {
	return s.InsertBatch(ctx, []types.Record{rec})
}

func (s *MemoryStore) InsertBatch(ctx context.Context, recs []types.Record) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Backend: "memory", Op: "insert", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &StoreError{Backend: "memory", Op: "insert", Err: ErrClosed}
	}

	insertedAt := s.now().UTC()
	for _, rec := range recs {
		id := uuid.New()
		row := NewRow(rec)
		row.ID = id.String()
		row.InsertedAt = insertedAt
		s.rows[id] = row
	}
	return nil
}

// Fetch returns up to limit rows, newest event first
func (s *MemoryStore) Fetch(ctx context.Context, limit int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Backend: "memory", Op: "fetch", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &StoreError{Backend: "memory", Op: "fetch", Err: ErrClosed}
	}

	results := make([]Row, 0, len(s.rows))
	for _, row := range s.rows {
		results = append(results, row)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if !a.InsertedAt.Equal(b.InsertedAt) {
			return a.InsertedAt.After(b.InsertedAt)
		}
		return a.ID < b.ID
	})

	if limit = normalizeLimit(limit); len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Len returns the number of stored rows
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
