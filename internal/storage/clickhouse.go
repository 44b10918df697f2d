package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"logwarden/internal/types"
)

// DefaultTable is the table written by the durable adapters
const DefaultTable = "logs"

const (
	insertColumns = "timestamp, source_ip, event_type, targeted_service, targeted_endpoint, request, status, action_taken, threat_level"
	selectColumns = "uuid, inserted_at, " + insertColumns
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ClickHouseConfig holds connection settings for the analytical store.
// DSN wins over the individual fields when set.
type ClickHouseConfig struct {
	DSN         string
	Addr        []string
	Database    string
	Username    string
	Password    string
	Table       string
	DialTimeout time.Duration
}

// ClickHouseSchema renders the DDL for the logs table: MergeTree ordered by
// (timestamp, source_ip, event_type), monthly partitions, 90 day TTL.
// uuid and inserted_at are generated server-side.
func ClickHouseSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    uuid UUID DEFAULT generateUUIDv4(),
    inserted_at DateTime DEFAULT now(),
    timestamp DateTime,
    source_ip String,
    event_type LowCardinality(String),
    targeted_service String,
    targeted_endpoint String,
    request String,
    status String,
    action_taken String,
    threat_level String
) ENGINE = MergeTree()
ORDER BY (timestamp, source_ip, event_type)
PARTITION BY toYYYYMM(timestamp)
TTL timestamp + INTERVAL 90 DAY`, table)
}

// chRow mirrors the projected columns for driver scanning
type chRow struct {
	ID               uuid.UUID `ch:"uuid"`
	InsertedAt       time.Time `ch:"inserted_at"`
	Timestamp        time.Time `ch:"timestamp"`
	SourceIP         string    `ch:"source_ip"`
	EventType        string    `ch:"event_type"`
	TargetedService  string    `ch:"targeted_service"`
	TargetedEndpoint string    `ch:"targeted_endpoint"`
	Request          string    `ch:"request"`
	Status           string    `ch:"status"`
	ActionTaken      string    `ch:"action_taken"`
	ThreatLevel      string    `ch:"threat_level"`
}

func (r chRow) row() Row {
	return Row{
		ID:               r.ID.String(),
		InsertedAt:       r.InsertedAt.UTC(),
		Timestamp:        r.Timestamp.UTC(),
		SourceIP:         r.SourceIP,
		EventType:        r.EventType,
		TargetedService:  r.TargetedService,
		TargetedEndpoint: r.TargetedEndpoint,
		Request:          r.Request,
		Status:           r.Status,
		ActionTaken:      r.ActionTaken,
		ThreatLevel:      r.ThreatLevel,
	}
}

// ClickHouseStore is the durable Store. Inserts use the native bulk protocol;
// concurrent calls share the driver's connection pool and no local lock.
type ClickHouseStore struct {
	conn  driver.Conn
	table string
}

// NewClickHouseStore connects and pings the server. It does not create the table.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", table)
	}

	opts, err := clickhouseOptions(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, &StoreError{Backend: "clickhouse", Op: "open", Err: err}
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, &StoreError{Backend: "clickhouse", Op: "ping", Err: err}
	}

	return &ClickHouseStore{conn: conn, table: table}, nil
}

func clickhouseOptions(cfg ClickHouseConfig) (*clickhouse.Options, error) {
	if cfg.DSN != "" {
		opts, err := clickhouse.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
		}
		return opts, nil
	}
	if len(cfg.Addr) == 0 {
		return nil, fmt.Errorf("clickhouse address is empty")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: dialTimeout,
	}, nil
}

// EnsureSchema creates the logs table if it does not exist
func (s *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, ClickHouseSchema(s.table)); err != nil {
		return &StoreError{Backend: "clickhouse", Op: "schema", Err: err}
	}
	return nil
}

func (s *ClickHouseStore) Insert(ctx context.Context, rec types.Record) error {
	return s.InsertBatch(ctx, []types.Record{rec})
}

func (s *ClickHouseStore) InsertBatch(ctx context.Context, recs []types.Record) error {
	if len(recs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", s.table, insertColumns))
	if err != nil {
		return &StoreError{Backend: "clickhouse", Op: "prepare batch", Err: err}
	}

	for _, rec := range recs {
		row := NewRow(rec)
		if err := batch.Append(
			row.Timestamp,
			row.SourceIP,
			row.EventType,
			row.TargetedService,
			row.TargetedEndpoint,
			row.Request,
			row.Status,
			row.ActionTaken,
			row.ThreatLevel,
		); err != nil {
			_ = batch.Abort()
			return &StoreError{Backend: "clickhouse", Op: "append", Err: err}
		}
	}

	if err := batch.Send(); err != nil {
		return &StoreError{Backend: "clickhouse", Op: "send batch", Err: err}
	}
	return nil
}

// Fetch returns up to limit rows, newest event first
func (s *ClickHouseStore) Fetch(ctx context.Context, limit int) ([]Row, error) {
	query := fetchQuery(s.table)

	var dest []chRow
	if err := s.conn.Select(ctx, &dest, query, uint64(normalizeLimit(limit))); err != nil {
		return nil, &StoreError{Backend: "clickhouse", Op: "fetch", Err: err}
	}

	rows := make([]Row, 0, len(dest))
	for _, r := range dest {
		rows = append(rows, r.row())
	}
	return rows, nil
}

// fetchQuery orders rows like the other adapters: newest event, then newest
// insert, then id
func fetchQuery(table string) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY timestamp DESC, inserted_at DESC, uuid LIMIT ?", selectColumns, table)
}

func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
