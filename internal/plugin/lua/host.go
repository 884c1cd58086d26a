// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package lua

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	plugins "github.com/garcia/cassium/internal/plugin"
	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Compile-time interface check.
var _ plugins.Host = (*Host)(nil)

// CodeAPIVersion is returned when a unit's require_api constraint is not met.
const CodeAPIVersion = "API_VERSION_UNSATISFIED"

var typeNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Host executes Lua source units.
//
// A unit is run once per load in a fresh state and defines its plugin types
// by calling cassium.plugin:
//
//	local Hello = cassium.plugin("Hello", { triggers = { "`hello" } })
//
//	function Hello:message(query, response)
//	  response:msg("Hello, " .. query.nick .. "!")
//	end
//
// Handler functions are named after signal kinds. Each plugin table carries
// a state table that is persisted between runs.
type Host struct {
	sandbox   *sandbox
	functions *Functions
	logger    *slog.Logger
}

// HostOption configures the Host.
type HostOption func(*Host)

// WithLogger sets the logger used by cassium.log and print.
func WithLogger(l *slog.Logger) HostOption {
	return func(h *Host) {
		h.logger = l
	}
}

// NewHost creates a Lua host.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		sandbox: newSandbox(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.functions = NewFunctions(h.logger)
	return h
}

// Extension returns ".lua".
func (h *Host) Extension() string { return ".lua" }

// definition collects cassium.plugin calls made while a unit runs.
type definition struct {
	names   map[string]bool
	plugins []*luaPlugin
}

// LoadUnit runs the unit in a new state and returns the plugins it defined,
// in definition order.
func (h *Host) LoadUnit(ctx context.Context, unit plugins.Unit) ([]pluginsdk.Plugin, error) {
	src, err := os.ReadFile(filepath.Clean(unit.File))
	if err != nil {
		return nil, oops.In("lua").With("unit", unit.Path).With("file", unit.File).
			Hint("failed to read unit").Wrap(err)
	}

	L, err := h.sandbox.open(ctx)
	if err != nil {
		return nil, oops.In("lua").With("unit", unit.Path).Hint("failed to create state").Wrap(err)
	}

	vm := &unitVM{L: L}
	def := &definition{names: make(map[string]bool)}
	mod := h.functions.Register(L, unit.Path)
	L.SetField(mod, "plugin", L.NewFunction(definePlugin(unit, vm, def)))
	registerResponseType(L)

	if err := h.run(ctx, L, unit, src); err != nil {
		L.Close()
		return nil, err
	}

	out := make([]pluginsdk.Plugin, 0, len(def.plugins))
	for _, p := range def.plugins {
		out = append(out, p)
	}
	return out, nil
}

func (h *Host) run(ctx context.Context, L *lua.LState, unit plugins.Unit, src []byte) error {
	L.SetContext(ctx)
	defer L.RemoveContext()

	fn, err := L.Load(bytes.NewReader(src), chunkName(unit))
	if err != nil {
		return oops.In("lua").With("unit", unit.Path).Hint("syntax error").Wrap(err)
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		var apiErr *lua.ApiError
		if errors.As(err, &apiErr) && apiErr.Object != nil &&
			strings.Contains(apiErr.Object.String(), apiMismatchPrefix) {
			return oops.In("lua").Code(CodeAPIVersion).With("unit", unit.Path).
				With("api_version", APIVersion).Errorf("%s", apiErr.Object.String())
		}
		return oops.In("lua").With("unit", unit.Path).Hint("unit raised an error").Wrap(err)
	}
	return nil
}

// chunkName is the name errors from the unit are reported under, e.g.
// "fun/dice.lua".
func chunkName(unit plugins.Unit) string {
	return strings.ReplaceAll(unit.Path, ".", "/") + ".lua"
}

// definePlugin implements cassium.plugin(name [, options]).
func definePlugin(unit plugins.Unit, vm *unitVM, def *definition) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		opts := L.OptTable(2, L.NewTable())

		if !typeNamePattern.MatchString(name) {
			L.ArgError(1, "invalid plugin name "+name)
			return 0
		}
		if def.names[name] {
			L.RaiseError("plugin %s is defined twice in %s", name, unit.Path)
			return 0
		}

		var triggers []string
		if t, ok := opts.RawGetString("triggers").(*lua.LTable); ok {
			for i := 1; i <= t.Len(); i++ {
				s, ok := t.RawGetInt(i).(lua.LString)
				if !ok {
					L.ArgError(2, "triggers must be strings")
					return 0
				}
				triggers = append(triggers, string(s))
			}
		}

		table := L.NewTable()
		table.RawSetString("name", lua.LString(unit.Path+"."+name))
		table.RawSetString("state", L.NewTable())

		def.names[name] = true
		def.plugins = append(def.plugins, &luaPlugin{
			name:     unit.Path + "." + name,
			vm:       vm,
			table:    table,
			triggers: triggers,
		})

		L.Push(table)
		return 1
	}
}
