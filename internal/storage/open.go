package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by Open
const (
	BackendMemory     = "memory"
	BackendClickHouse = "clickhouse"
	BackendSQLite     = "sqlite"
)

// Config selects and configures a Store implementation
type Config struct {
	Backend    string
	Table      string
	ClickHouse ClickHouseConfig
	SQLitePath string
	// CreateSchema creates the ClickHouse table on open
	CreateSchema bool
}

// Open constructs the Store named by cfg.Backend
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMemory, "":
		logger.Info("using in-memory store")
		return NewMemoryStore(), nil

	case BackendClickHouse:
		chCfg := cfg.ClickHouse
		if chCfg.Table == "" {
			chCfg.Table = cfg.Table
		}
		s, err := NewClickHouseStore(ctx, chCfg)
		if err != nil {
			return nil, err
		}
		if cfg.CreateSchema {
			if err := s.EnsureSchema(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		logger.Info("connected to clickhouse", slog.String("table", s.table))
		return s, nil

	case BackendSQLite:
		s, err := NewSQLiteStore(cfg.SQLitePath, cfg.Table)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite store", slog.String("path", cfg.SQLitePath))
		return s, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
