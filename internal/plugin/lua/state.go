// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package lua runs plugin source units written in Lua.
package lua

import (
	"context"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// Unit states are small: plugins keep their data in the state table and
// never recurse deeply.
const (
	unitCallStackSize = 256
	unitRegistrySize  = 1024 * 16
)

// library is one standard library opened in every unit state.
type library struct {
	name string
	open lua.LGFunction
}

// unitLibraries are the libraries a unit can use. os, io, debug and
// package are never opened.
var unitLibraries = []library{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// hiddenGlobals are removed from the base library after it is opened.
// Each of them loads code the host has not seen.
var hiddenGlobals = []string{"dofile", "loadfile", "loadstring", "load", "require", "module"}

// sandbox builds the states units run in.
type sandbox struct {
	libraries []library
}

func newSandbox() *sandbox {
	return &sandbox{libraries: unitLibraries}
}

// open returns a fresh state for one unit. The caller owns the state and
// closes it when the unit is unloaded.
func (s *sandbox) open(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: unitCallStackSize,
		RegistrySize:  unitRegistrySize,
	})
	L.SetContext(ctx)
	defer L.RemoveContext()

	for _, lib := range s.libraries {
		err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), Protect: true}, lua.LString(lib.name))
		if err != nil {
			L.Close()
			return nil, oops.In("lua").With("library", lib.name).
				Wrapf(err, "failed to open library %s", lib.name)
		}
	}
	for _, name := range hiddenGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L, nil
}
