// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/garcia/cassium/internal/config"
	"github.com/garcia/cassium/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Cassium CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cassium",
		Short: "Cassium - a pluggable IRC bot",
		Long: `Cassium is an IRC bot whose behavior lives in Lua plugins.
Every event is offered to every interested plugin and the replies they
request are sent together once all of them have run.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file path (default: XDG_CONFIG_HOME/cassium/config.yaml if present)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigSchemaCmd())
	cmd.AddCommand(NewValidateConfigCmd())

	return cmd
}

// configPath returns the --config value, or the XDG default when that file
// exists. An empty result means defaults and flags only.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	if _, err := os.Stat(xdg.ConfigFile()); err == nil {
		return xdg.ConfigFile()
	}
	return ""
}

// loadConfig loads and validates the configuration. fs may be nil for
// commands that take no configuration flags.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(configPath(), fs)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// storeDSN returns the configured store, defaulting to the SQLite file in
// the XDG data directory.
func storeDSN(cfg *config.Config) (string, error) {
	if cfg.Store.DSN != "" {
		return cfg.Store.DSN, nil
	}
	dsn := xdg.StateDB()
	if err := xdg.EnsureDir(xdg.DataDir()); err != nil {
		return "", oops.In("cassium").With("dsn", dsn).Wrap(err)
	}
	return dsn, nil
}
