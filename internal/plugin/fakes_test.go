// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package plugins_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	plugins "github.com/garcia/cassium/internal/plugin"
	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Helper functions for creating test fixtures with secure permissions.
func mkdirAll(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o750))
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	mkdirAll(t, filepath.Dir(path))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// fakePlugin counts the messages it sees and persists the count.
type fakePlugin struct {
	pluginsdk.Base
	generation int
	triggers   []string
	count      int
	failLoad   bool
}

func (p *fakePlugin) Handlers() pluginsdk.Handlers {
	return pluginsdk.Handlers{
		pluginsdk.KindMessage: func(_ context.Context, _ *pluginsdk.Query, _ *pluginsdk.Response) error {
			p.count++
			return nil
		},
	}
}

func (p *fakePlugin) Triggers() []string { return p.triggers }

func (p *fakePlugin) Save(context.Context) ([]byte, error) {
	return []byte(strconv.Itoa(p.count)), nil
}

func (p *fakePlugin) Load(_ context.Context, data []byte) error {
	if p.failLoad {
		return errors.New("corrupt snapshot")
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	p.count = n
	return nil
}

// fakeHost loads ".fake" units. Each non-empty line of a unit names one
// plugin type; a line "!fail" makes the unit fail to execute and a line
// "!badstate" makes every plugin in it reject its snapshot.
type fakeHost struct {
	mu    sync.Mutex
	loads map[string]int
}

func newFakeHost() *fakeHost {
	return &fakeHost{loads: make(map[string]int)}
}

func (h *fakeHost) Extension() string { return ".fake" }

func (h *fakeHost) LoadUnit(_ context.Context, unit plugins.Unit) ([]pluginsdk.Plugin, error) {
	data, err := os.ReadFile(unit.File)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.loads[unit.Path]++
	generation := h.loads[unit.Path]
	h.mu.Unlock()

	var (
		out      []pluginsdk.Plugin
		badState bool
	)
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		switch strings.TrimSpace(line) {
		case "!fail":
			return nil, errors.New("syntax error near line 1")
		case "!badstate":
			badState = true
		}
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		out = append(out, &fakePlugin{
			Base:       pluginsdk.Base{ID: unit.Path + "." + line},
			generation: generation,
			failLoad:   badState,
		})
	}
	return out, nil
}

// memStore is an in-memory StateStore.
type memStore struct {
	slots   map[string][]byte
	saveErr error
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{slots: make(map[string][]byte)}
}

func (s *memStore) Load(_ context.Context, name string) ([]byte, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.slots[name], nil
}

func (s *memStore) Save(_ context.Context, name string, data []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.slots[name] = data
	return nil
}

func pluginNamed(t *testing.T, reg *plugins.Registry, name string) *fakePlugin {
	t.Helper()
	entry, ok := reg.Get(name)
	require.True(t, ok, "plugin %s not registered", name)
	p, ok := entry.Plugin.(*fakePlugin)
	require.True(t, ok)
	return p
}
