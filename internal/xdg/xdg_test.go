// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/cassium", ConfigDir())
	assert.Equal(t, "/custom/config/cassium/config.yaml", ConfigFile())

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/testuser")
	assert.Equal(t, "/home/testuser/.config/cassium", ConfigDir())

	t.Setenv("XDG_CONFIG_HOME", "relative/config")
	assert.Equal(t, "/home/testuser/.config/cassium", ConfigDir())
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, "/custom/data/cassium", DataDir())
	assert.Equal(t, "/custom/data/cassium/state.db", StateDB())

	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "/home/testuser")
	assert.Equal(t, "/home/testuser/.local/share/cassium", DataDir())

	t.Setenv("XDG_DATA_HOME", "data")
	assert.Equal(t, "/home/testuser/.local/share/cassium/state.db", StateDB())
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	// Existing directories are fine.
	require.NoError(t, EnsureDir(dir))
}

func TestEnsureDir_Failure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	err := EnsureDir(filepath.Join(file, "sub"))
	require.Error(t, err)
}
