package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"logwarden/internal/storage"
)

func newSchemaCmd(a *app) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or apply the table DDL for the configured backend",
		Long: `Print the CREATE TABLE statement for storage.backend. With --apply
the statement is executed; it is idempotent.

Ingestion never creates tables on its own unless
storage.clickhouse.create_schema is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.cfg.Storage
			table := s.Table
			if table == "" {
				table = storage.DefaultTable
			}

			var ddl string
			switch s.Backend {
			case storage.BackendClickHouse:
				ddl = storage.ClickHouseSchema(table)
			case storage.BackendSQLite:
				ddl = storage.SQLiteSchema(table)
			default:
				return fmt.Errorf("backend %q has no schema", s.Backend)
			}

			if !apply {
				fmt.Fprintln(cmd.OutOrStdout(), ddl)
				return nil
			}

			ctx := cmd.Context()
			cfg := a.cfg.StoreConfig()
			cfg.CreateSchema = true
			// both adapters create the table while opening
			store, err := storage.Open(ctx, cfg, a.logger)
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			fmt.Fprintf(cmd.OutOrStdout(), "schema applied to %s table %s\n", s.Backend, table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "execute the DDL against the store")
	return cmd
}
