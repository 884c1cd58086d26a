// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package plugins discovers, loads and tracks bot plugins.
package plugins

import (
	"context"
	"regexp"

	"github.com/samber/oops"

	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Entry is a registered plugin with its capabilities resolved at
// registration time.
type Entry struct {
	Plugin   pluginsdk.Plugin
	handlers pluginsdk.Handlers
	triggers []*regexp.Regexp
}

// NewEntry resolves a plugin's handlers and compiles its triggers.
func NewEntry(p pluginsdk.Plugin) (*Entry, error) {
	e := &Entry{
		Plugin:   p,
		handlers: make(pluginsdk.Handlers),
	}
	for kind, fn := range p.Handlers() {
		if fn == nil {
			continue
		}
		if !kind.Valid() {
			return nil, oops.In("plugin").Code("UNKNOWN_KIND").
				With("plugin", p.Name()).With("kind", string(kind)).
				Errorf("plugin %s handles unknown signal %q", p.Name(), kind)
		}
		e.handlers[kind] = fn
	}

	if t, ok := p.(pluginsdk.Triggered); ok {
		for _, pattern := range t.Triggers() {
			// Anchor at the start of the text without requiring a full match.
			re, err := regexp.Compile(`\A(?:` + pattern + `)`)
			if err != nil {
				return nil, oops.In("plugin").Code("TRIGGER_INVALID").
					With("plugin", p.Name()).With("trigger", pattern).Wrap(err)
			}
			e.triggers = append(e.triggers, re)
		}
	}
	return e, nil
}

// Name returns the plugin's fully-qualified name.
func (e *Entry) Name() string { return e.Plugin.Name() }

// Handler returns the handler for kind, if the plugin declared one.
func (e *Entry) Handler(kind pluginsdk.Kind) (pluginsdk.HandlerFunc, bool) {
	fn, ok := e.handlers[kind]
	return fn, ok
}

// Matches reports whether a message should reach the plugin: true when the
// plugin has no triggers or at least one trigger matches the text.
func (e *Entry) Matches(text string) bool {
	if len(e.triggers) == 0 {
		return true
	}
	for _, re := range e.triggers {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Save snapshots the plugin's state; plugins without state return nil.
func (e *Entry) Save(ctx context.Context) ([]byte, bool, error) {
	s, ok := e.Plugin.(pluginsdk.Stateful)
	if !ok {
		return nil, false, nil
	}
	data, err := s.Save(ctx)
	if err != nil {
		return nil, true, oops.In("plugin").Code("STATE_SAVE_FAILED").With("plugin", e.Name()).Wrap(err)
	}
	return data, true, nil
}

// Registry is the ordered set of loaded plugins. Order is first-load order
// and is the dispatch order; names are unique.
//
// Registry is not safe for concurrent use. Loading and dispatch both run on
// the bot's event loop.
type Registry struct {
	entries []*Entry
	index   map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Upsert registers p. A plugin whose name is already registered replaces the
// existing entry in place; otherwise it is appended. It reports whether an
// existing entry was replaced.
func (r *Registry) Upsert(p pluginsdk.Plugin) (bool, error) {
	entry, err := NewEntry(p)
	if err != nil {
		return false, err
	}
	if i, ok := r.index[entry.Name()]; ok {
		r.entries[i] = entry
		return true, nil
	}
	r.index[entry.Name()] = len(r.entries)
	r.entries = append(r.entries, entry)
	return false, nil
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (*Entry, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.entries[i], true
}

// All returns the entries in dispatch order. The slice is a copy; loads
// during a dispatch do not affect an iteration already in progress.
func (r *Registry) All() []*Entry {
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns the registered names in dispatch order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name()
	}
	return names
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int { return len(r.entries) }
