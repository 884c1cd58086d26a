// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package bot runs the event loop: every inbound event is offered to the
// loaded plugins and the actions they request are sent back through the
// transport.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/text/encoding"

	"github.com/garcia/cassium/internal/access"
	plugins "github.com/garcia/cassium/internal/plugin"
	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// ErrRestart is returned by Run after a restart was requested and the bot
// has saved its plugins and disconnected. The caller re-executes the process.
var ErrRestart = errors.New("restart requested")

// Transport is the outbound side of the chat connection.
type Transport interface {
	// Nick returns the nickname the connection is currently registered with.
	Nick() string
	SendMessage(ctx context.Context, target, text string) error
	SendNotice(ctx context.Context, target, text string) error
	SendAction(ctx context.Context, channel, text string) error
	Join(ctx context.Context, channel, key string) error
	Leave(ctx context.Context, channel, reason string) error
	Kick(ctx context.Context, channel, user, reason string) error
	SetTopic(ctx context.Context, channel, topic string) error
	SetMode(ctx context.Context, channel, mode string, args ...string) error
	SetNick(ctx context.Context, nick string) error
	// Disconnect drops the current connection with a quit reason.
	Disconnect(ctx context.Context, reason string) error
}

// PluginSource is where the bot gets its ordinary plugins from and how it
// persists plugin state.
type PluginSource interface {
	Registry() *plugins.Registry
	Load(ctx context.Context, path string) ([]string, error)
	Restore(ctx context.Context, p pluginsdk.Plugin) error
	SaveAll(ctx context.Context) error
	SavePlugin(ctx context.Context, p pluginsdk.Plugin) error
}

type pendingAction int

const (
	pendingNone pendingAction = iota
	pendingReconnect
	pendingRestart
)

// Bot dispatches inbound events to plugins. It implements
// pluginsdk.Controller for the privileged plugins installed on it.
//
// Dispatch, reloads and the joined-channel set are owned by the goroutine
// running Run; only Channels and Nick may be called from elsewhere.
type Bot struct {
	transport  Transport
	source     PluginSource
	privileged []*plugins.Entry
	admins     access.Checker
	encoder    *encoding.Encoder
	reloads    <-chan string
	logger     *slog.Logger

	mu       sync.RWMutex
	channels []string

	pending       pendingAction
	pendingReason string
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		b.logger = l
	}
}

// WithAdmins sets the allow-list used to mark queries from admins.
func WithAdmins(c access.Checker) Option {
	return func(b *Bot) {
		b.admins = c
	}
}

// WithEncoding sets the text encoding applied to outbound messages.
func WithEncoding(enc encoding.Encoding) Option {
	return func(b *Bot) {
		b.encoder = encoding.ReplaceUnsupported(enc.NewEncoder())
	}
}

// WithReloads makes Run reload the dotted plugin paths received on ch
// between events.
func WithReloads(ch <-chan string) Option {
	return func(b *Bot) {
		b.reloads = ch
	}
}

// New creates a bot sending through transport and dispatching to the plugins
// in source's registry.
func New(transport Transport, source PluginSource, opts ...Option) *Bot {
	b := &Bot{
		transport: transport,
		source:    source,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Install restores p's saved state, attaches it to the bot and adds it to
// the privileged plugins, which are dispatched after the ordinary ones.
func (b *Bot) Install(ctx context.Context, p pluginsdk.Privileged) error {
	entry, err := plugins.NewEntry(p)
	if err != nil {
		return err
	}
	if err := b.source.Restore(ctx, p); err != nil {
		return err
	}
	p.Attach(b)
	b.privileged = append(b.privileged, entry)
	b.logger.InfoContext(ctx, "installed", "plugin", p.Name())
	return nil
}

// Run dispatches events until ctx is done, events is closed or a restart has
// been carried out. Reloads received through WithReloads run between events.
func (b *Bot) Run(ctx context.Context, events <-chan pluginsdk.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := b.Dispatch(ctx, ev); err != nil {
				return err
			}
		case path, ok := <-b.reloads:
			if !ok {
				b.reloads = nil
				continue
			}
			b.reload(ctx, path)
		}
	}
}

func (b *Bot) reload(ctx context.Context, path string) {
	names, err := b.Reload(ctx, path)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to reload plugins", "path", path, "error", err)
		return
	}
	b.logger.InfoContext(ctx, "reloaded changed unit", "path", path, "plugins", names)
}

// Nick returns the bot's current nickname.
func (b *Bot) Nick() string {
	return b.transport.Nick()
}

// Channels returns the channels the bot is in, in join order.
func (b *Bot) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.channels)
}

// Reload loads or reloads the plugins addressed by a dotted path.
func (b *Bot) Reload(ctx context.Context, path string) ([]string, error) {
	return b.source.Load(ctx, path)
}

// SaveAll persists ordinary and privileged plugins.
func (b *Bot) SaveAll(ctx context.Context) error {
	if err := b.source.SaveAll(ctx); err != nil {
		return err
	}
	for _, entry := range b.privileged {
		if err := b.source.SavePlugin(ctx, entry.Plugin); err != nil {
			return err
		}
	}
	return nil
}

// Reconnect schedules a save and disconnect after the current event is
// flushed.
func (b *Bot) Reconnect(reason string) {
	b.schedule(pendingReconnect, reason)
}

// Restart schedules a save, disconnect and process restart after the current
// event is flushed.
func (b *Bot) Restart(reason string) {
	b.schedule(pendingRestart, reason)
}

func (b *Bot) schedule(action pendingAction, reason string) {
	// A restart is never downgraded to a reconnect within one event.
	if action < b.pending {
		return
	}
	b.pending = action
	b.pendingReason = reason
}

// runPending carries out a reconnect or restart requested during the event
// that was just flushed. State is saved before the connection is dropped.
func (b *Bot) runPending(ctx context.Context) error {
	action, reason := b.pending, b.pendingReason
	b.pending, b.pendingReason = pendingNone, ""
	if action == pendingNone {
		return nil
	}

	if err := b.SaveAll(ctx); err != nil {
		return oops.In("bot").With("reason", reason).Wrapf(err, "failed to save plugins before disconnecting")
	}
	if err := b.transport.Disconnect(ctx, reason); err != nil {
		return oops.In("bot").With("reason", reason).Wrapf(err, "failed to disconnect")
	}

	if action == pendingRestart {
		b.logger.InfoContext(ctx, "restarting", "reason", reason)
		return ErrRestart
	}
	b.logger.InfoContext(ctx, "reconnecting", "reason", reason)
	return nil
}

// track keeps the joined-channel set in step with the bot's own joins,
// parts and kicks. A new connection starts with no channels.
func (b *Bot) track(ev pluginsdk.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch ev.Kind {
	case pluginsdk.KindConnected:
		b.channels = nil
	case pluginsdk.KindSelfJoin:
		if !slices.Contains(b.channels, ev.Channel) {
			b.channels = append(b.channels, ev.Channel)
		}
	case pluginsdk.KindSelfLeave, pluginsdk.KindSelfKick:
		b.channels = slices.DeleteFunc(b.channels, func(ch string) bool { return ch == ev.Channel })
	}
}

func (b *Bot) joined() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.channels
}
