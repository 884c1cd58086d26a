// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package plugin

import "context"

// HandlerFunc handles one signal kind. A returned error aborts the whole
// dispatch: nothing queued for the event is sent.
type HandlerFunc func(ctx context.Context, q *Query, r *Response) error

// Handlers maps the signal kinds a plugin is interested in to its handlers.
// A kind without an entry is not delivered to the plugin.
type Handlers map[Kind]HandlerFunc

// Plugin is the capability contract every plugin implements.
//
// Handlers is consulted once, when the plugin is registered; the returned map
// is the plugin's fixed set of capabilities for its lifetime.
type Plugin interface {
	// Name returns the fully-qualified name, unique within the registry.
	Name() string
	Handlers() Handlers
}

// Triggered is implemented by plugins whose message handler should only run
// when the message text matches one of the patterns. Patterns are anchored at
// the start of the text; every plugin with at least one match fires.
type Triggered interface {
	Triggers() []string
}

// Stateful is implemented by plugins that persist private state. Load is
// called once after construction when a snapshot exists; Save returns an
// opaque snapshot that is handed back to Load on a later run.
type Stateful interface {
	Save(ctx context.Context) ([]byte, error)
	Load(ctx context.Context, data []byte) error
}

// Controller is the handle privileged plugins get on the running bot for
// actions a Response cannot express.
type Controller interface {
	// Nick returns the bot's current nickname.
	Nick() string
	// Channels returns the channels the bot is currently in.
	Channels() []string
	// Reload loads or reloads plugins addressed by a dotted path and returns
	// the fully-qualified names that were registered.
	Reload(ctx context.Context, path string) ([]string, error)
	// SaveAll persists the state of every loaded plugin.
	SaveAll(ctx context.Context) error
	// Reconnect schedules a save and disconnect once the current event has
	// been flushed; the transport then reconnects.
	Reconnect(reason string)
	// Restart schedules a save, disconnect and re-execution of the process
	// once the current event has been flushed.
	Restart(reason string)
}

// Privileged is implemented by built-in plugins that need the Controller.
// Attach is called once when the plugin is installed on the bot.
type Privileged interface {
	Plugin
	Attach(c Controller)
}

// Base can be embedded to get a name and no-op state handling.
type Base struct {
	ID string
}

// Name returns the plugin's fully-qualified name.
func (b Base) Name() string { return b.ID }

// Save returns no state.
func (Base) Save(context.Context) ([]byte, error) { return nil, nil }

// Load ignores the snapshot.
func (Base) Load(context.Context, []byte) error { return nil }
