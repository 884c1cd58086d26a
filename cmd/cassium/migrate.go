// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/garcia/cassium/internal/store"
)

// migrator is the part of *store.Migrator the migrate commands use.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(dsn string) (migrator, error) {
	return store.NewMigrator(dsn)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var dsn string

	withMigrator := func(fn func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			url, err := postgresDSN(dsn)
			if err != nil {
				return err
			}
			m, err := newMigrator(url)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := m.Close(); closeErr != nil {
					cmd.PrintErrf("warning: %v\n", closeErr)
				}
			}()
			return fn(cmd, m, args)
		}
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL store schema",
		Long: `Apply all pending schema migrations to the PostgreSQL plugin state
store. SQLite and in-memory stores need no migrations.`,
		Args: cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			pending, err := m.Pending()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				cmd.Println("Schema is up to date")
				return nil
			}
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Printf("Applied %d migration(s)\n", len(pending))
			return nil
		}),
	}
	cmd.PersistentFlags().StringVar(&dsn, "store", "", "postgres URL (default: store.dsn from the config file)")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			pending, err := m.Pending()
			if err != nil {
				return err
			}
			name, err := store.MigrationName(version)
			if err != nil {
				return err
			}
			if name == "" {
				name = "none"
			}
			cmd.Printf("Version: %d (%s)\n", version, name)
			if dirty {
				cmd.Println("State: dirty; repair the schema and run 'cassium migrate force <version>'")
			}
			cmd.Printf("Pending: %d\n", len(pending))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all saved plugin state",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("Rolled back all migrations")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied without running it",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(version); err != nil {
				return err
			}
			cmd.Printf("Forced version %d\n", version)
			return nil
		}),
	})

	return cmd
}

// postgresDSN picks the --store flag or the configured store and checks
// that it is a PostgreSQL URL.
func postgresDSN(flag string) (string, error) {
	dsn := flag
	if dsn == "" {
		cfg, err := loadConfig(nil)
		if err != nil {
			return "", err
		}
		dsn = cfg.Store.DSN
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return "", oops.Code("CONFIG_INVALID").
			With("dsn", store.Redact(dsn)).
			Hint("only the PostgreSQL store has migrations; pass --store postgres://...").
			Errorf("store %q is not a PostgreSQL URL", store.Redact(dsn))
	}
	return dsn, nil
}

func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}
