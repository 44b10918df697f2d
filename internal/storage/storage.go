// Package storage persists parsed events and reads them back newest first.
//
// Store is implemented by MemoryStore (tests, store-less environments),
// ClickHouseStore (the durable analytical store) and SQLiteStore (a local
// single-file store). Row identifiers and ingestion times are always assigned
// by the store, never by the caller.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"logwarden/internal/parser"
	"logwarden/internal/types"
)

// DefaultFetchLimit applies when Fetch is called without a positive limit
const DefaultFetchLimit = 50

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store closed")

// Store is the persistence port shared by ingestion and the read API.
//
// InsertBatch is not atomic: on error anywhere between zero and all rows may
// have been written, and the whole batch may be re-issued.
type Store interface {
	Insert(ctx context.Context, rec types.Record) error
	InsertBatch(ctx context.Context, recs []types.Record) error
	Fetch(ctx context.Context, limit int) ([]Row, error)
	Close() error
}

// StoreError wraps a failed store operation with the backend and operation name
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Row is the flat, store-facing projection of a Record. Absent optional
// fields are empty strings, so an empty value cannot be told apart from a
// missing one.
type Row struct {
	ID               string    `json:"id"`
	InsertedAt       time.Time `json:"inserted_at"`
	Timestamp        time.Time `json:"timestamp"`
	SourceIP         string    `json:"source_ip"`
	EventType        string    `json:"event_type"`
	TargetedService  string    `json:"targeted_service"`
	TargetedEndpoint string    `json:"targeted_endpoint"`
	Request          string    `json:"request"`
	Status           string    `json:"status"`
	ActionTaken      string    `json:"action_taken"`
	ThreatLevel      string    `json:"threat_level"`
}

// Event types written to the event_type column
const (
	EventWebAccess   = "web_access"
	EventAuthFailure = "auth_failure"
	EventAuthSuccess = "auth_success"
)

// NewRow projects a record onto the flat schema. ID and InsertedAt stay zero.
func NewRow(rec types.Record) Row {
	ev := rec.Event
	row := Row{
		Timestamp:   ev.Timestamp.UTC(),
		SourceIP:    ev.OriginString(),
		ThreatLevel: string(rec.Risk()),
	}

	switch ev.Source {
	case types.SourceWebAccess:
		request := types.StringValue(ev.Request)
		row.EventType = EventWebAccess
		row.TargetedService = "http"
		row.TargetedEndpoint = parser.RequestPath(request)
		row.Request = request
		row.Status = strconv.Itoa(int(ev.StatusCode))
		row.ActionTaken = types.NotEvaluated.String()
	case types.SourceAuthLog:
		row.TargetedService = "sshd"
		row.TargetedEndpoint = types.StringValue(ev.Identity)
		if ev.Outcome == types.OutcomeSucceeded {
			row.EventType = EventAuthSuccess
			row.Status = "accepted"
		} else {
			row.EventType = EventAuthFailure
			row.Status = "failed"
		}
		row.ActionTaken = rec.Disposition.String()
	}
	return row
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultFetchLimit
	}
	return limit
}
