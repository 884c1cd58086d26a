// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package control implements the operator commands built into the bot.
package control

import (
	"context"
	"strings"

	"github.com/samber/oops"

	"github.com/garcia/cassium/internal/access"
	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Name is the fully-qualified name of the control plugin.
const Name = "builtin.control.Control"

// DefaultPrefix marks a message as an operator command.
const DefaultPrefix = "`"

// Refusal is the reply to a command from a nick that is not an admin.
const Refusal = "You are not permitted to use this command."

// CodeNotAttached is returned when a command needs the bot but the plugin
// was never installed on one.
const CodeNotAttached = "CONTROL_NOT_ATTACHED"

type command func(ctx context.Context, args []string, q *pluginsdk.Query, r *pluginsdk.Response) error

// Plugin handles operator commands: join, leave, nick, import (alias
// reload), save, reconnect and restart. Every command is refused unless the
// sender's nick is on the admin list.
type Plugin struct {
	prefix   string
	admins   access.Checker
	ctl      pluginsdk.Controller
	commands map[string]command
}

// Option configures the control plugin.
type Option func(*Plugin)

// WithPrefix sets the command prefix; DefaultPrefix is used otherwise.
func WithPrefix(prefix string) Option {
	return func(p *Plugin) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// New creates the control plugin gated by admins.
func New(admins access.Checker, opts ...Option) *Plugin {
	p := &Plugin{
		prefix: DefaultPrefix,
		admins: admins,
	}
	p.commands = map[string]command{
		"join":      p.join,
		"leave":     p.leave,
		"nick":      p.nick,
		"import":    p.load,
		"reload":    p.load,
		"save":      p.save,
		"reconnect": p.reconnect,
		"restart":   p.restart,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements pluginsdk.Plugin.
func (p *Plugin) Name() string { return Name }

// Handlers implements pluginsdk.Plugin.
func (p *Plugin) Handlers() pluginsdk.Handlers {
	return pluginsdk.Handlers{pluginsdk.KindMessage: p.message}
}

// Attach implements pluginsdk.Privileged.
func (p *Plugin) Attach(c pluginsdk.Controller) { p.ctl = c }

func (p *Plugin) message(ctx context.Context, q *pluginsdk.Query, r *pluginsdk.Response) error {
	if len(q.Words) == 0 || !strings.HasPrefix(q.Words[0], p.prefix) {
		return nil
	}
	cmd, ok := p.commands[strings.TrimPrefix(q.Words[0], p.prefix)]
	if !ok {
		return nil
	}
	if p.admins == nil || !p.admins.Allowed(q.Nick) {
		r.Msg(Refusal)
		return nil
	}
	return cmd(ctx, q.Words[1:], q, r)
}

func (p *Plugin) join(_ context.Context, args []string, _ *pluginsdk.Query, r *pluginsdk.Response) error {
	channel := arg(args, 0)
	if channel == "" {
		r.Msg(p.usage("join <channel> [key]"))
		return nil
	}
	r.Join(channel, arg(args, 1))
	return nil
}

func (p *Plugin) leave(_ context.Context, args []string, q *pluginsdk.Query, r *pluginsdk.Response) error {
	channel := arg(args, 0)
	if channel == "" {
		channel = q.Channel
	}
	if channel == "" {
		r.Msg(p.usage("leave <channel> [reason]"))
		return nil
	}
	r.Leave(channel, rest(args, 1))
	return nil
}

func (p *Plugin) nick(_ context.Context, args []string, _ *pluginsdk.Query, r *pluginsdk.Response) error {
	nick := arg(args, 0)
	if nick == "" {
		r.Msg(p.usage("nick <nick>"))
		return nil
	}
	r.Nick(nick)
	return nil
}

func (p *Plugin) load(ctx context.Context, args []string, _ *pluginsdk.Query, r *pluginsdk.Response) error {
	path := arg(args, 0)
	if path == "" {
		r.Msg(p.usage("import <plugin.path>"))
		return nil
	}
	ctl, err := p.controller()
	if err != nil {
		return err
	}
	if _, err := ctl.Reload(ctx, path); err != nil {
		return err
	}
	r.Msg("Loaded " + path + ".")
	return nil
}

func (p *Plugin) save(ctx context.Context, _ []string, _ *pluginsdk.Query, r *pluginsdk.Response) error {
	ctl, err := p.controller()
	if err != nil {
		return err
	}
	if err := ctl.SaveAll(ctx); err != nil {
		return err
	}
	r.Msg("Saved.")
	return nil
}

func (p *Plugin) reconnect(_ context.Context, args []string, _ *pluginsdk.Query, _ *pluginsdk.Response) error {
	ctl, err := p.controller()
	if err != nil {
		return err
	}
	ctl.Reconnect(reason(args, "Reconnecting"))
	return nil
}

func (p *Plugin) restart(_ context.Context, args []string, _ *pluginsdk.Query, _ *pluginsdk.Response) error {
	ctl, err := p.controller()
	if err != nil {
		return err
	}
	ctl.Restart(reason(args, "Restarting"))
	return nil
}

func (p *Plugin) controller() (pluginsdk.Controller, error) {
	if p.ctl == nil {
		return nil, oops.In("control").Code(CodeNotAttached).Errorf("control plugin is not attached to a bot")
	}
	return p.ctl, nil
}

func (p *Plugin) usage(syntax string) string {
	return "Usage: " + p.prefix + syntax
}

// arg returns the i-th argument, or "" if there is none.
func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// rest joins the arguments from i on, as typed.
func rest(args []string, i int) string {
	if i < len(args) {
		return strings.TrimSpace(strings.Join(args[i:], " "))
	}
	return ""
}

func reason(args []string, fallback string) string {
	if r := rest(args, 0); r != "" {
		return r
	}
	return fallback
}
