// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package session joins the configured channels whenever the bot connects.
package session

import (
	"context"
	"strings"

	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Name is the fully-qualified name of the session plugin.
const Name = "builtin.session.Session"

// Plugin reacts to the connected signal.
type Plugin struct {
	channels []string
	ctl      pluginsdk.Controller
}

// New creates the session plugin. Channel entries may carry a key after a
// space: "#secret hunter2".
func New(channels ...string) *Plugin {
	return &Plugin{channels: append([]string(nil), channels...)}
}

// Name implements pluginsdk.Plugin.
func (p *Plugin) Name() string { return Name }

// Handlers implements pluginsdk.Plugin.
func (p *Plugin) Handlers() pluginsdk.Handlers {
	return pluginsdk.Handlers{pluginsdk.KindConnected: p.connected}
}

// Attach implements pluginsdk.Privileged.
func (p *Plugin) Attach(c pluginsdk.Controller) { p.ctl = c }

func (p *Plugin) connected(_ context.Context, _ *pluginsdk.Query, r *pluginsdk.Response) error {
	for _, entry := range p.channels {
		channel, key, _ := strings.Cut(strings.TrimSpace(entry), " ")
		if channel == "" || p.in(channel) {
			continue
		}
		r.Join(channel, strings.TrimSpace(key))
	}
	return nil
}

// in reports whether the bot is already in channel.
func (p *Plugin) in(channel string) bool {
	if p.ctl == nil {
		return false
	}
	for _, ch := range p.ctl.Channels() {
		if strings.EqualFold(ch, channel) {
			return true
		}
	}
	return false
}
