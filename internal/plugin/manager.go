// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package plugins

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/oops"

	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Error codes returned by the Manager.
const (
	CodeNotFound    = "PLUGIN_NOT_FOUND"
	CodeNoPlugins   = "NO_PLUGINS"
	CodeLoadFailed  = "PLUGIN_LOAD_FAILED"
	CodeStateLoad   = "STATE_LOAD_FAILED"
	CodeStateSave   = "STATE_SAVE_FAILED"
	CodeInvalidPath = "INVALID_PATH"
)

// ErrStateRestore marks failures to restore a plugin's saved state. Unlike
// other load failures it aborts discovery.
var ErrStateRestore = errors.New("restore plugin state")

// segmentPattern validates one element of a dotted plugin path.
var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// Manager discovers plugin source units and keeps the registry up to date.
type Manager struct {
	root     string
	registry *Registry
	store    StateStore
	hosts    map[string]Host
	logger   *slog.Logger
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithHost adds a runtime host for its file extension.
func WithHost(h Host) ManagerOption {
	return func(m *Manager) {
		m.hosts[h.Extension()] = h
	}
}

// WithStateStore sets where plugin state snapshots are kept.
func WithStateStore(s StateStore) ManagerOption {
	return func(m *Manager) {
		m.store = s
	}
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a plugin manager rooted at dir.
func NewManager(dir string, registry *Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		root:     dir,
		registry: registry,
		hosts:    make(map[string]Host),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the plugin root directory.
func (m *Manager) Root() string { return m.root }

// Registry returns the registry the manager loads into.
func (m *Manager) Registry() *Registry { return m.registry }

// Discover walks the plugin root in lexical order and loads every unit.
//
// Discovery degrades gracefully: a unit that fails to execute or defines no
// plugins is logged and skipped. Failing to restore a plugin's saved state
// is not recoverable and aborts discovery.
func (m *Manager) Discover(ctx context.Context) error {
	if _, err := os.Stat(m.root); err != nil {
		if os.IsNotExist(err) {
			m.logger.WarnContext(ctx, "plugin directory does not exist", "dir", m.root)
			return nil
		}
		return oops.In("plugin").With("dir", m.root).Wrap(err)
	}

	units, err := m.walk(m.root)
	if err != nil {
		return err
	}

	for _, unit := range units {
		_, err := m.loadUnit(ctx, unit, "")
		switch {
		case err == nil:
		case errors.Is(err, ErrStateRestore):
			return err
		case isCode(err, CodeNoPlugins):
			m.logger.WarnContext(ctx, "unit defines no plugins", "unit", unit.Path, "file", unit.File)
		default:
			m.logger.ErrorContext(ctx, "failed to load plugin unit", "unit", unit.Path, "error", err)
		}
	}
	return nil
}

// Load loads or reloads the plugins addressed by a dotted path and returns
// the names that were registered. The path may name a directory, a unit, or a
// single type inside a unit ("fun.dice.Dice"). Finding no plugin definitions
// is an error here, unlike during Discover.
func (m *Manager) Load(ctx context.Context, path string) ([]string, error) {
	units, typeName, err := m.Resolve(path)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, unit := range units {
		loaded, err := m.loadUnit(ctx, unit, typeName)
		if err != nil && !(len(units) > 1 && isCode(err, CodeNoPlugins)) {
			return names, err
		}
		names = append(names, loaded...)
	}
	if len(names) == 0 {
		return nil, oops.In("plugin").Code(CodeNoPlugins).With("path", path).
			Errorf("no plugins found in %s", path)
	}
	return names, nil
}

// Resolve maps a dotted path to the units it addresses. When the last
// segment names a type rather than a unit, it is returned as typeName.
func (m *Manager) Resolve(path string) (units []Unit, typeName string, err error) {
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if !segmentPattern.MatchString(seg) {
			return nil, "", oops.In("plugin").Code(CodeInvalidPath).With("path", path).
				Errorf("invalid plugin path %q", path)
		}
	}

	base := filepath.Join(append([]string{m.root}, segments...)...)
	if info, statErr := os.Stat(base); statErr == nil && info.IsDir() {
		units, err := m.walk(base)
		return units, "", err
	}
	if unit, ok := m.unitAt(base, path); ok {
		return []Unit{unit}, "", nil
	}
	if len(segments) > 1 {
		parent := strings.Join(segments[:len(segments)-1], ".")
		parentBase := filepath.Join(append([]string{m.root}, segments[:len(segments)-1]...)...)
		if unit, ok := m.unitAt(parentBase, parent); ok {
			return []Unit{unit}, segments[len(segments)-1], nil
		}
	}
	return nil, "", oops.In("plugin").Code(CodeNotFound).With("path", path).
		Errorf("no plugin unit found for %s", path)
}

// UnitForFile returns the unit a source file under the root corresponds to.
func (m *Manager) UnitForFile(file string) (Unit, bool) {
	if _, ok := m.hosts[filepath.Ext(file)]; !ok {
		return Unit{}, false
	}
	rel, err := filepath.Rel(m.root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Unit{}, false
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	path := strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
	for _, seg := range strings.Split(path, ".") {
		if !segmentPattern.MatchString(seg) {
			return Unit{}, false
		}
	}
	return Unit{Path: path, File: file}, true
}

// Restore loads p's saved state, if any, without registering it. Built-in
// plugins that live outside the registry use this.
func (m *Manager) Restore(ctx context.Context, p pluginsdk.Plugin) error {
	s, ok := p.(pluginsdk.Stateful)
	if !ok || m.store == nil {
		return nil
	}
	data, err := m.store.Load(ctx, p.Name())
	if err != nil {
		return oops.In("plugin").Code(CodeStateLoad).With("plugin", p.Name()).
			Wrap(errors.Join(ErrStateRestore, err))
	}
	if data == nil {
		return nil
	}
	if err := s.Load(ctx, data); err != nil {
		return oops.In("plugin").Code(CodeStateLoad).With("plugin", p.Name()).
			Wrap(errors.Join(ErrStateRestore, err))
	}
	return nil
}

// SaveAll writes the state of every registered plugin to the state store.
func (m *Manager) SaveAll(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	for _, entry := range m.registry.All() {
		if err := m.save(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// SavePlugin writes the state of one plugin.
func (m *Manager) SavePlugin(ctx context.Context, p pluginsdk.Plugin) error {
	entry, err := NewEntry(p)
	if err != nil {
		return err
	}
	return m.save(ctx, entry)
}

func (m *Manager) save(ctx context.Context, entry *Entry) error {
	if m.store == nil {
		return nil
	}
	data, stateful, err := entry.Save(ctx)
	if err != nil || !stateful {
		return err
	}
	if err := m.store.Save(ctx, entry.Name(), data); err != nil {
		return oops.In("plugin").Code(CodeStateSave).With("plugin", entry.Name()).Wrap(err)
	}
	return nil
}

func (m *Manager) loadUnit(ctx context.Context, unit Unit, typeName string) ([]string, error) {
	host, ok := m.hosts[filepath.Ext(unit.File)]
	if !ok {
		return nil, oops.In("plugin").Code(CodeLoadFailed).With("unit", unit.Path).
			Errorf("no host for %s", filepath.Ext(unit.File))
	}

	plugins, err := host.LoadUnit(ctx, unit)
	if err != nil {
		return nil, oops.In("plugin").Code(CodeLoadFailed).With("unit", unit.Path).Wrap(err)
	}

	if typeName != "" {
		want := unit.Path + "." + typeName
		var selected []pluginsdk.Plugin
		for _, p := range plugins {
			if p.Name() == want {
				selected = append(selected, p)
			}
		}
		plugins = selected
	}
	if len(plugins) == 0 {
		return nil, oops.In("plugin").Code(CodeNoPlugins).With("unit", unit.Path).With("type", typeName).
			Errorf("no plugins defined in %s", unit.Path)
	}

	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		if err := m.install(ctx, p); err != nil {
			return names, err
		}
		names = append(names, p.Name())
	}
	return names, nil
}

// install restores saved state and upserts p. When p replaces a live plugin,
// the old instance is saved first so the replacement starts from its latest
// state.
func (m *Manager) install(ctx context.Context, p pluginsdk.Plugin) error {
	if old, ok := m.registry.Get(p.Name()); ok {
		if err := m.save(ctx, old); err != nil {
			return err
		}
	}

	if err := m.Restore(ctx, p); err != nil {
		return err
	}

	replaced, err := m.registry.Upsert(p)
	if err != nil {
		return err
	}
	if replaced {
		m.logger.InfoContext(ctx, "reloaded", "plugin", p.Name())
	} else {
		m.logger.InfoContext(ctx, "imported", "plugin", p.Name())
	}
	return nil
}

// walk lists the units below dir in lexical order, skipping dot-entries.
func (m *Manager) walk(dir string) ([]Unit, error) {
	var units []Unit
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if unit, ok := m.UnitForFile(path); ok {
			units = append(units, unit)
		}
		return nil
	})
	if err != nil {
		return nil, oops.In("plugin").With("dir", dir).Wrap(err)
	}
	return units, nil
}

func (m *Manager) unitAt(base, path string) (Unit, bool) {
	for ext := range m.hosts {
		file := base + ext
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			return Unit{Path: path, File: file}, true
		}
	}
	return Unit{}, false
}

func isCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == code
}
