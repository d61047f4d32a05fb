// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package contexts

import (
	"context"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// safeLibrary is a Lua library safe to load in a sandboxed state.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// Safe: base, table, string, math. Blocked: os, io, debug, package.
func safeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// unsafeBaseFunctions are base library functions that reach the filesystem
// and must be removed from the sandbox.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// LuaCalculator runs a user-supplied script to compute dynamic contexts.
// The script must define a global function:
//
//	function calculate(subject)
//	    return { key = "value", ... }
//	end
//
// String keys map to single values; a table value yields one pair per
// element. The state is guarded by a mutex since lua.LState is not
// goroutine safe.
type LuaCalculator struct {
	mu sync.Mutex
	st *lua.LState
}

// NewLuaCalculator compiles script source into a sandboxed state and
// verifies it defines calculate().
func NewLuaCalculator(script string) (*LuaCalculator, error) {
	st := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range safeLibraries() {
		if err := st.CallByParam(lua.P{
			Fn:      st.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			st.Close()
			return nil, oops.Code("LUA_INIT_FAILED").With("library", lib.name).Wrap(err)
		}
	}
	for _, fn := range unsafeBaseFunctions {
		st.SetGlobal(fn, lua.LNil)
	}

	if err := st.DoString(script); err != nil {
		st.Close()
		return nil, oops.Code("LUA_SCRIPT_FAILED").Wrap(err)
	}
	if _, ok := st.GetGlobal("calculate").(*lua.LFunction); !ok {
		st.Close()
		return nil, oops.Code("LUA_SCRIPT_FAILED").Errorf("script does not define calculate()")
	}

	return &LuaCalculator{st: st}, nil
}

// Calculate implements Calculator.
func (c *LuaCalculator) Calculate(_ context.Context, subject string, acc *MutableContextSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.st.CallByParam(lua.P{
		Fn:      c.st.GetGlobal("calculate"),
		NRet:    1,
		Protect: true,
	}, lua.LString(subject)); err != nil {
		return oops.Code("LUA_CALL_FAILED").With("subject", subject).Wrap(err)
	}

	ret := c.st.Get(-1)
	c.st.Pop(1)

	table, ok := ret.(*lua.LTable)
	if !ok {
		if ret == lua.LNil {
			return nil
		}
		return oops.Code("LUA_CALL_FAILED").
			Errorf("calculate() returned %s, want table", ret.Type())
	}

	var convErr error
	table.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		key, ok := k.(lua.LString)
		if !ok {
			convErr = oops.Code("LUA_CALL_FAILED").
				Errorf("context key must be a string, got %s", k.Type())
			return
		}
		switch val := v.(type) {
		case lua.LString:
			acc.Add(string(key), string(val))
		case *lua.LTable:
			val.ForEach(func(_, elem lua.LValue) {
				if s, ok := elem.(lua.LString); ok {
					acc.Add(string(key), string(s))
				}
			})
		default:
			convErr = oops.Code("LUA_CALL_FAILED").
				Errorf("context value for %q must be a string or table, got %s", string(key), v.Type())
		}
	})
	return convErr
}

// Close releases the Lua state.
func (c *LuaCalculator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Close()
}
