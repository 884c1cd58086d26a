// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package xdg locates the bot's configuration and state files under the
// XDG base directories.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "cassium"

// base returns $env when it holds an absolute path and $HOME/fallback
// otherwise. Relative values are ignored as the base directory rules require.
func base(env string, fallback ...string) string {
	if dir := os.Getenv(env); filepath.IsAbs(dir) {
		return filepath.Join(dir, appName)
	}
	parts := append([]string{os.Getenv("HOME")}, fallback...)
	return filepath.Join(append(parts, appName)...)
}

// ConfigDir is $XDG_CONFIG_HOME/cassium.
func ConfigDir() string { return base("XDG_CONFIG_HOME", ".config") }

// DataDir is $XDG_DATA_HOME/cassium.
func DataDir() string { return base("XDG_DATA_HOME", ".local", "share") }

// ConfigFile is the configuration read when --config is not given.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StateDB is the SQLite file plugin state goes to when no store is
// configured.
func StateDB() string {
	return filepath.Join(DataDir(), "state.db")
}

// EnsureDir creates path and its parents, readable only by the owner.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.In("xdg").With("path", path).Wrapf(err, "failed to create directory %s", path)
	}
	return nil
}
