// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package irc

import (
	"context"
	"strings"

	"github.com/garcia/cassium/internal/observability"
	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Numeric replies the client reacts to.
const (
	rplWelcome       = "001"
	errNicknameInUse = "433"
)

// handle reacts to one inbound line. Protocol housekeeping is answered
// directly; user-visible traffic is translated into an event and delivered.
func (c *Client) handle(ctx context.Context, msg Message) error {
	switch msg.Command {
	case "PING":
		return c.send(ctx, "PONG", msg.Params...)

	case rplWelcome:
		return c.welcome(ctx, msg)

	case errNicknameInUse:
		// Only registration retries; a failed rename keeps the current nick.
		if c.registered.Load() {
			return nil
		}
		c.mu.Lock()
		c.nick += "_"
		nick := c.nick
		c.mu.Unlock()
		c.logger.InfoContext(ctx, "nickname in use, retrying", "nick", nick)
		return c.send(ctx, "NICK", nick)

	case "ERROR":
		c.logger.WarnContext(ctx, "server closed the link", "reason", msg.Param(0))
		return nil
	}

	ev, ok := c.translate(msg)
	if !ok {
		return nil
	}
	return c.deliver(ctx, ev)
}

func (c *Client) welcome(ctx context.Context, msg Message) error {
	c.mu.Lock()
	if nick := msg.Param(0); nick != "" {
		c.nick = nick
	}
	c.mu.Unlock()

	if c.cfg.NickServPassword != "" {
		if err := c.send(ctx, "PRIVMSG", "NickServ", "IDENTIFY "+c.cfg.NickServPassword); err != nil {
			return err
		}
	}
	c.registered.Store(true)
	observability.RecordConnectionEvent(observability.ConnRegistered)
	c.logger.InfoContext(ctx, "registered", "addr", c.cfg.Addr(), "nick", c.Nick())
	return c.deliver(ctx, pluginsdk.Event{Kind: pluginsdk.KindConnected, Source: msg.Prefix})
}

func (c *Client) deliver(ctx context.Context, ev pluginsdk.Event) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) isSelf(nick string) bool {
	return strings.EqualFold(nick, c.Nick())
}

// translate maps a server line onto an inbound event.
func (c *Client) translate(msg Message) (pluginsdk.Event, bool) {
	ev := pluginsdk.Event{Source: msg.Prefix}
	self := c.isSelf(msg.Nick())

	switch msg.Command {
	case "PRIVMSG":
		target, text := msg.Param(0), msg.Param(1)
		if IsChannel(target) {
			ev.Channel = target
		}
		if cmd, arg, ok := ctcp(text); ok {
			if cmd != "ACTION" {
				return ev, false
			}
			ev.Kind = pluginsdk.KindAction
			ev.Text = arg
			return ev, true
		}
		ev.Kind = pluginsdk.KindMessage
		ev.Text = text

	case "JOIN":
		ev.Channel = msg.Param(0)
		ev.Kind = pluginsdk.KindJoin
		if self {
			ev.Kind = pluginsdk.KindSelfJoin
		}

	case "PART":
		ev.Channel = msg.Param(0)
		ev.Text = msg.Param(1)
		ev.Kind = pluginsdk.KindLeave
		if self {
			ev.Kind = pluginsdk.KindSelfLeave
		}

	case "QUIT":
		ev.Kind = pluginsdk.KindQuit
		ev.Text = msg.Param(0)

	case "KICK":
		ev.Channel = msg.Param(0)
		ev.Target = msg.Param(1)
		ev.Text = msg.Param(2)
		ev.Kind = pluginsdk.KindKick
		if c.isSelf(ev.Target) {
			ev.Kind = pluginsdk.KindSelfKick
		}

	case "TOPIC":
		ev.Kind = pluginsdk.KindTopic
		ev.Channel = msg.Param(0)
		ev.Text = msg.Param(1)

	case "NICK":
		ev.Target = msg.Param(0)
		ev.Kind = pluginsdk.KindNick
		if self {
			ev.Kind = pluginsdk.KindSelfNick
			c.mu.Lock()
			c.nick = ev.Target
			c.mu.Unlock()
		}

	default:
		return ev, false
	}
	return ev, true
}
