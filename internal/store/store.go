// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package store persists plugin state snapshots. Each plugin owns one slot
// keyed by its fully-qualified name.
package store

import (
	"context"
	"strings"

	"github.com/samber/oops"
)

// Error codes returned by stores.
const (
	CodeInvalidDSN  = "STORE_INVALID_DSN"
	CodeOpenFailed  = "STORE_OPEN_FAILED"
	CodeLoadFailed  = "STORE_LOAD_FAILED"
	CodeSaveFailed  = "STORE_SAVE_FAILED"
	CodeNotMigrated = "STORE_NOT_MIGRATED"
)

// Store holds one opaque snapshot per plugin.
type Store interface {
	// Load returns the snapshot saved under name, or nil if there is none.
	Load(ctx context.Context, name string) ([]byte, error)
	// Save replaces the snapshot saved under name.
	Save(ctx context.Context, name string, data []byte) error
	Close() error
}

// Open opens the store described by dsn:
//
//	postgres://... or postgresql://...  PostgreSQL (schema managed by Migrator)
//	memory:                              in-process, lost on exit
//	sqlite://path or a bare path         SQLite file, created on demand
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "":
		return nil, oops.Code(CodeInvalidDSN).Errorf("empty store dsn")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	case dsn == "memory:":
		return NewMemory(), nil
	default:
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	}
}

// Redact hides the password of a connection string for logging.
func Redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return dsn
	}
	return scheme + "://" + user + ":***@" + host
}
