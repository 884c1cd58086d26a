// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package plugins

import (
	"context"

	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Unit is one plugin source file found under the plugin root.
type Unit struct {
	// Path is the dotted path of the unit relative to the root, without
	// extension, e.g. "fun.dice" for fun/dice.lua.
	Path string
	// File is the absolute path of the source file.
	File string
}

// Host turns source units of one runtime into plugin instances.
type Host interface {
	// Extension is the file extension handled by the host, including the dot.
	Extension() string

	// LoadUnit executes a unit and returns a fresh instance of every plugin
	// type it defines, named "<unit path>.<type name>". A unit that defines
	// no plugin types returns an empty slice and no error.
	LoadUnit(ctx context.Context, unit Unit) ([]pluginsdk.Plugin, error)
}

// StateStore holds one opaque snapshot slot per plugin, keyed by the
// plugin's fully-qualified name.
type StateStore interface {
	// Load returns the snapshot for name, or nil when none was saved.
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}
