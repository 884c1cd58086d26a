// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package lua

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"
)

// APIVersion is the version of the cassium Lua API offered to units.
const APIVersion = "1.0.0"

// Functions provides the cassium.* host functions to a unit's state.
type Functions struct {
	logger  *slog.Logger
	version *semver.Version
}

// NewFunctions creates host functions that log through logger.
func NewFunctions(logger *slog.Logger) *Functions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Functions{
		logger:  logger,
		version: semver.MustParse(APIVersion),
	}
}

// Register installs the cassium module table into ls and returns it so the
// host can add unit-specific entries.
func (f *Functions) Register(ls *lua.LState, unitPath string) *lua.LTable {
	mod := ls.NewTable()
	logger := f.logger.With("unit", unitPath)

	ls.SetField(mod, "api_version", lua.LString(APIVersion))
	ls.SetField(mod, "log", ls.NewFunction(logFn(logger)))
	ls.SetField(mod, "new_id", ls.NewFunction(newIDFn))
	ls.SetField(mod, "require_api", ls.NewFunction(f.requireAPIFn))

	ls.SetGlobal("cassium", mod)
	ls.SetGlobal("print", ls.NewFunction(printFn(logger)))
	return mod
}

func stateContext(ls *lua.LState) context.Context {
	if ctx := ls.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func logFn(logger *slog.Logger) lua.LGFunction {
	return func(ls *lua.LState) int {
		level := ls.CheckString(1)
		message := ls.CheckString(2)

		ctx := stateContext(ls)
		switch level {
		case "debug":
			logger.DebugContext(ctx, message)
		case "info":
			logger.InfoContext(ctx, message)
		case "warn":
			logger.WarnContext(ctx, message)
		case "error":
			logger.ErrorContext(ctx, message)
		default:
			logger.InfoContext(ctx, message)
		}
		return 0
	}
}

// printFn replaces the base print so unit output lands in the log.
func printFn(logger *slog.Logger) lua.LGFunction {
	return func(ls *lua.LState) int {
		parts := make([]string, ls.GetTop())
		for i := range parts {
			parts[i] = ls.ToStringMeta(ls.Get(i + 1)).String()
		}
		logger.InfoContext(stateContext(ls), strings.Join(parts, "\t"))
		return 0
	}
}

func newIDFn(ls *lua.LState) int {
	ls.Push(lua.LString(ulid.Make().String()))
	return 1
}

// requireAPIFn raises an error unless the host API version satisfies the
// constraint given as the only argument.
func (f *Functions) requireAPIFn(ls *lua.LState) int {
	raw := ls.CheckString(1)
	constraint, err := semver.NewConstraint(raw)
	if err != nil {
		ls.ArgError(1, "invalid version constraint: "+err.Error())
		return 0
	}
	if !constraint.Check(f.version) {
		ls.RaiseError("%s %q is not satisfied by %s", apiMismatchPrefix, raw, APIVersion)
	}
	return 0
}

// apiMismatchPrefix starts the error raised by require_api, so the host can
// tell it apart from other load failures.
const apiMismatchPrefix = "cassium API version"
