// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package bot_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	plugins "github.com/garcia/cassium/internal/plugin"
	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// callLog records transport calls and state saves in the order they happen.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// fakeTransport records every call. A call whose rendered form starts with
// failOn returns an error.
type fakeTransport struct {
	log    *callLog
	nick   string
	failOn string
}

func (f *fakeTransport) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	if f.failOn != "" && strings.HasPrefix(call, f.failOn) {
		return errors.New("connection reset by peer")
	}
	f.log.add("%s", call)
	return nil
}

func (f *fakeTransport) Nick() string { return f.nick }

func (f *fakeTransport) SendMessage(_ context.Context, target, text string) error {
	return f.record("msg %s %s", target, text)
}

func (f *fakeTransport) SendNotice(_ context.Context, target, text string) error {
	return f.record("notice %s %s", target, text)
}

func (f *fakeTransport) SendAction(_ context.Context, channel, text string) error {
	return f.record("action %s %s", channel, text)
}

func (f *fakeTransport) Join(_ context.Context, channel, key string) error {
	if key != "" {
		return f.record("join %s %s", channel, key)
	}
	return f.record("join %s", channel)
}

func (f *fakeTransport) Leave(_ context.Context, channel, reason string) error {
	return f.record("leave %s %s", channel, reason)
}

func (f *fakeTransport) Kick(_ context.Context, channel, user, reason string) error {
	return f.record("kick %s %s %s", channel, user, reason)
}

func (f *fakeTransport) SetTopic(_ context.Context, channel, topic string) error {
	return f.record("topic %s %s", channel, topic)
}

func (f *fakeTransport) SetMode(_ context.Context, channel, mode string, args ...string) error {
	return f.record("mode %s %s %s", channel, mode, strings.Join(args, " "))
}

func (f *fakeTransport) SetNick(_ context.Context, nick string) error {
	return f.record("nick %s", nick)
}

func (f *fakeTransport) Disconnect(_ context.Context, reason string) error {
	return f.record("disconnect %s", reason)
}

// fakeSource serves plugins from an in-memory registry.
type fakeSource struct {
	log      *callLog
	registry *plugins.Registry
	loads    map[string][]pluginsdk.Plugin
	saveErr  error
	restored []string
}

func newFakeSource(log *callLog, ps ...pluginsdk.Plugin) *fakeSource {
	s := &fakeSource{log: log, registry: plugins.NewRegistry(), loads: map[string][]pluginsdk.Plugin{}}
	for _, p := range ps {
		if _, err := s.registry.Upsert(p); err != nil {
			panic(err)
		}
	}
	return s
}

func (s *fakeSource) Registry() *plugins.Registry { return s.registry }

func (s *fakeSource) Load(_ context.Context, path string) ([]string, error) {
	ps, ok := s.loads[path]
	if !ok {
		return nil, fmt.Errorf("no plugins found at %s", path)
	}
	var names []string
	for _, p := range ps {
		if _, err := s.registry.Upsert(p); err != nil {
			return nil, err
		}
		names = append(names, p.Name())
	}
	return names, nil
}

func (s *fakeSource) Restore(_ context.Context, p pluginsdk.Plugin) error {
	s.restored = append(s.restored, p.Name())
	return nil
}

func (s *fakeSource) SaveAll(context.Context) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.log.add("save all")
	return nil
}

func (s *fakeSource) SavePlugin(_ context.Context, p pluginsdk.Plugin) error {
	s.log.add("save %s", p.Name())
	return nil
}

// testPlugin is a plugin assembled from handler funcs.
type testPlugin struct {
	name     string
	triggers []string
	handlers pluginsdk.Handlers
}

func (p *testPlugin) Name() string                 { return p.name }
func (p *testPlugin) Handlers() pluginsdk.Handlers { return p.handlers }
func (p *testPlugin) Triggers() []string           { return p.triggers }

func onMessage(name string, fn pluginsdk.HandlerFunc, triggers ...string) *testPlugin {
	return &testPlugin{
		name:     name,
		triggers: triggers,
		handlers: pluginsdk.Handlers{pluginsdk.KindMessage: fn},
	}
}

// privileged wraps a testPlugin and keeps the controller it is attached to.
type privileged struct {
	*testPlugin
	ctl pluginsdk.Controller
}

func (p *privileged) Attach(c pluginsdk.Controller) { p.ctl = c }

func message(nick, channel, text string) pluginsdk.Event {
	return pluginsdk.Event{
		Kind:    pluginsdk.KindMessage,
		Source:  nick + "!" + nick + "@example.net",
		Channel: channel,
		Text:    text,
	}
}
