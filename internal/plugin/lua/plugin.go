// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package lua

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"gopkg.in/yaml.v3"

	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Compile-time interface checks.
var (
	_ pluginsdk.Plugin    = (*luaPlugin)(nil)
	_ pluginsdk.Triggered = (*luaPlugin)(nil)
	_ pluginsdk.Stateful  = (*luaPlugin)(nil)
)

// unitVM is the Lua state a unit was executed in. Every plugin type the unit
// defines shares it.
type unitVM struct {
	mu sync.Mutex
	L  *lua.LState
}

// luaPlugin is one plugin type defined by a unit with cassium.plugin.
type luaPlugin struct {
	name     string
	vm       *unitVM
	table    *lua.LTable
	triggers []string
}

func (p *luaPlugin) Name() string { return p.name }

func (p *luaPlugin) Triggers() []string { return p.triggers }

// Handlers returns a handler for every signal kind the plugin table has a
// function for, looked up through metatables.
func (p *luaPlugin) Handlers() pluginsdk.Handlers {
	p.vm.mu.Lock()
	defer p.vm.mu.Unlock()

	handlers := make(pluginsdk.Handlers)
	for _, kind := range pluginsdk.Kinds {
		fn, ok := p.vm.L.GetField(p.table, string(kind)).(*lua.LFunction)
		if !ok {
			continue
		}
		handlers[kind] = p.handler(kind, fn)
	}
	return handlers
}

func (p *luaPlugin) handler(kind pluginsdk.Kind, fn *lua.LFunction) pluginsdk.HandlerFunc {
	return func(ctx context.Context, q *pluginsdk.Query, r *pluginsdk.Response) error {
		p.vm.mu.Lock()
		defer p.vm.mu.Unlock()

		L := p.vm.L
		L.SetContext(ctx)
		defer L.RemoveContext()

		err := L.CallByParam(lua.P{
			Fn:      fn,
			NRet:    0,
			Protect: true,
		}, p.table, queryTable(L, q), responseValue(L, r))
		if err != nil {
			return handlerError(p.name, kind, err)
		}
		return nil
	}
}

// handlerError keeps the Lua traceback out of the error's public message.
func handlerError(name string, kind pluginsdk.Kind, err error) error {
	builder := oops.In("lua").With("plugin", name).With("kind", string(kind))
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		msg := apiErr.Object.String()
		return builder.With("traceback", apiErr.StackTrace).Public(msg).Errorf("%s", msg)
	}
	return builder.Wrap(err)
}

// Save encodes the plugin's state table as YAML.
func (p *luaPlugin) Save(context.Context) ([]byte, error) {
	p.vm.mu.Lock()
	defer p.vm.mu.Unlock()

	value, err := toGo(p.vm.L.GetField(p.table, "state"), 0)
	if err != nil {
		return nil, oops.In("lua").With("plugin", p.name).Wrapf(err, "encode state")
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		return nil, oops.In("lua").With("plugin", p.name).Wrapf(err, "encode state")
	}
	return data, nil
}

// Load replaces the plugin's state table with a decoded snapshot.
func (p *luaPlugin) Load(_ context.Context, data []byte) error {
	var value any
	if err := yaml.Unmarshal(data, &value); err != nil {
		return oops.In("lua").With("plugin", p.name).Wrapf(err, "decode state")
	}

	p.vm.mu.Lock()
	defer p.vm.mu.Unlock()

	state := fromGo(p.vm.L, value)
	if state == lua.LNil {
		state = p.vm.L.NewTable()
	}
	p.vm.L.SetField(p.table, "state", state)
	return nil
}
