package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"logwarden/internal/types"
)

// sqliteTime matches strftime('%Y-%m-%d %H:%M:%f') so stored text sorts chronologically
const sqliteTime = "2006-01-02 15:04:05.000"

// SQLiteStore is a single-file Store for hosts without ClickHouse
type SQLiteStore struct {
	db     *sql.DB
	table  string
	closed atomic.Bool
}

func NewSQLiteStore(dbPath, table string) (*SQLiteStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) || strings.Contains(table, ".") {
		return nil, fmt.Errorf("invalid sqlite table name %q", table)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "open", Err: err}
	}
	// one writer at a time; sqlite locks the whole file anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(SQLiteSchema(table)); err != nil {
		db.Close()
		return nil, &StoreError{Backend: "sqlite", Op: "schema", Err: err}
	}

	return &SQLiteStore{db: db, table: table}, nil
}

// SQLiteSchema renders the DDL for the logs table and its read index
func SQLiteSchema(table string) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
		inserted_at TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%d %%H:%%M:%%f', 'now')),
		timestamp TEXT NOT NULL,
		source_ip TEXT NOT NULL,
		event_type TEXT NOT NULL,
		targeted_service TEXT NOT NULL,
		targeted_endpoint TEXT NOT NULL,
		request TEXT NOT NULL,
		status TEXT NOT NULL,
		action_taken TEXT NOT NULL,
		threat_level TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS %[1]s_timestamp_idx ON %[1]s (timestamp, source_ip, event_type);`, table)
}

func (s *SQLiteStore) Insert(ctx context.Context, rec types.Record) error {
	return s.InsertBatch(ctx, []types.Record{rec})
}

func (s *SQLiteStore) InsertBatch(ctx context.Context, recs []types.Record) error {
	if s.closed.Load() {
		return &StoreError{Backend: "sqlite", Op: "insert", Err: ErrClosed}
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Backend: "sqlite", Op: "begin", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.table, insertColumns))
	if err != nil {
		return &StoreError{Backend: "sqlite", Op: "prepare", Err: err}
	}
	defer stmt.Close()

	for _, rec := range recs {
		row := NewRow(rec)
		_, err = stmt.ExecContext(ctx,
			row.Timestamp.Format(sqliteTime),
			row.SourceIP,
			row.EventType,
			row.TargetedService,
			row.TargetedEndpoint,
			row.Request,
			row.Status,
			row.ActionTaken,
			row.ThreatLevel,
		)
		if err != nil {
			return &StoreError{Backend: "sqlite", Op: "insert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Backend: "sqlite", Op: "commit", Err: err}
	}
	return nil
}

// Fetch returns up to limit rows, newest event first
func (s *SQLiteStore) Fetch(ctx context.Context, limit int) ([]Row, error) {
	if s.closed.Load() {
		return nil, &StoreError{Backend: "sqlite", Op: "fetch", Err: ErrClosed}
	}

	query := fmt.Sprintf(
		"SELECT id, inserted_at, %s FROM %s ORDER BY timestamp DESC, inserted_at DESC, id LIMIT ?",
		insertColumns, s.table,
	)
	rows, err := s.db.QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "fetch", Err: err}
	}
	defer rows.Close()

	var results []Row
	for rows.Next() {
		var r Row
		var insertedAt, timestamp string
		err = rows.Scan(
			&r.ID,
			&insertedAt,
			&timestamp,
			&r.SourceIP,
			&r.EventType,
			&r.TargetedService,
			&r.TargetedEndpoint,
			&r.Request,
			&r.Status,
			&r.ActionTaken,
			&r.ThreatLevel,
		)
		if err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: "scan", Err: err}
		}
		if r.InsertedAt, err = time.Parse(sqliteTime, insertedAt); err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: "scan", Err: err}
		}
		if r.Timestamp, err = time.Parse(sqliteTime, timestamp); err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: "scan", Err: err}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "fetch", Err: err}
	}

	return results, nil
}

func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
