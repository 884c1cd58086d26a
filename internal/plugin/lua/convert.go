// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package lua

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"

	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// maxDepth bounds table nesting when converting state, which also catches
// reference cycles.
const maxDepth = 64

const responseTypeName = "cassium.response"

// queryTable builds the read-only view of q passed to handlers.
func queryTable(ls *lua.LState, q *pluginsdk.Query) *lua.LTable {
	t := ls.NewTable()
	t.RawSetString("kind", lua.LString(q.Kind))
	t.RawSetString("user", lua.LString(q.User))
	t.RawSetString("nick", lua.LString(q.Nick))
	t.RawSetString("host", lua.LString(q.Host))
	t.RawSetString("admin", lua.LBool(q.Admin))
	t.RawSetString("private", lua.LBool(q.Private()))
	setOptional(t, "channel", q.Channel)
	setOptional(t, "message", q.Message)
	setOptional(t, "kicker", q.Kicker)
	setOptional(t, "kickee", q.Kickee)
	setOptional(t, "old_name", q.OldName)
	setOptional(t, "new_name", q.NewName)
	setOptional(t, "topic", q.Topic)
	if q.Words != nil {
		t.RawSetString("words", stringList(ls, q.Words))
	}
	t.RawSetString("channels", stringList(ls, q.Channels))
	return t
}

func setOptional(t *lua.LTable, key, value string) {
	if value != "" {
		t.RawSetString(key, lua.LString(value))
	}
}

func stringList(ls *lua.LState, items []string) *lua.LTable {
	t := ls.CreateTable(len(items), 0)
	for _, item := range items {
		t.Append(lua.LString(item))
	}
	return t
}

// registerResponseType installs the metatable used for response userdata.
func registerResponseType(ls *lua.LState) {
	mt := ls.NewTypeMetatable(responseTypeName)
	ls.SetField(mt, "__index", ls.SetFuncs(ls.NewTable(), map[string]lua.LGFunction{
		"target":    responseTarget,
		"msg":       responseMsg,
		"msg_to":    responseMsgTo,
		"notice":    responseNotice,
		"action":    responseAction,
		"action_to": responseActionTo,
		"join":      responseJoin,
		"leave":     responseLeave,
		"kick":      responseKick,
		"topic":     responseTopic,
		"mode":      responseMode,
		"nick":      responseNick,
		"log":       responseLog,
	}))
}

func responseValue(ls *lua.LState, r *pluginsdk.Response) *lua.LUserData {
	ud := ls.NewUserData()
	ud.Value = r
	ls.SetMetatable(ud, ls.GetTypeMetatable(responseTypeName))
	return ud
}

func checkResponse(ls *lua.LState) *pluginsdk.Response {
	ud := ls.CheckUserData(1)
	if r, ok := ud.Value.(*pluginsdk.Response); ok {
		return r
	}
	ls.ArgError(1, "response expected")
	return nil
}

func responseTarget(ls *lua.LState) int {
	ls.Push(lua.LString(checkResponse(ls).Target()))
	return 1
}

func responseMsg(ls *lua.LState) int {
	checkResponse(ls).Msg(ls.CheckString(2))
	return 0
}

func responseMsgTo(ls *lua.LState) int {
	checkResponse(ls).MsgTo(ls.CheckString(2), ls.CheckString(3))
	return 0
}

func responseNotice(ls *lua.LState) int {
	checkResponse(ls).Notice(ls.CheckString(2), ls.CheckString(3))
	return 0
}

func responseAction(ls *lua.LState) int {
	checkResponse(ls).Action(ls.CheckString(2))
	return 0
}

func responseActionTo(ls *lua.LState) int {
	checkResponse(ls).ActionTo(ls.CheckString(2), ls.CheckString(3))
	return 0
}

func responseJoin(ls *lua.LState) int {
	checkResponse(ls).Join(ls.CheckString(2), ls.OptString(3, ""))
	return 0
}

func responseLeave(ls *lua.LState) int {
	checkResponse(ls).Leave(ls.CheckString(2), ls.OptString(3, ""))
	return 0
}

func responseKick(ls *lua.LState) int {
	checkResponse(ls).Kick(ls.CheckString(2), ls.CheckString(3), ls.OptString(4, ""))
	return 0
}

func responseTopic(ls *lua.LState) int {
	checkResponse(ls).Topic(ls.CheckString(2), ls.CheckString(3))
	return 0
}

func responseMode(ls *lua.LState) int {
	r := checkResponse(ls)
	channel := ls.CheckString(2)
	mode := ls.CheckString(3)
	var args []string
	for i := 4; i <= ls.GetTop(); i++ {
		args = append(args, ls.CheckString(i))
	}
	r.Mode(channel, mode, args...)
	return 0
}

func responseNick(ls *lua.LState) int {
	checkResponse(ls).Nick(ls.CheckString(2))
	return 0
}

func responseLog(ls *lua.LState) int {
	checkResponse(ls).Log(ls.CheckString(2))
	return 0
}

// toGo converts a Lua value into plain Go values that yaml can encode.
// Tables whose keys are exactly 1..n become slices; other tables become maps.
func toGo(v lua.LValue, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("state nested deeper than %d levels", maxDepth)
	}
	switch v := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
		return f, nil
	case *lua.LTable:
		return tableToGo(v, depth)
	default:
		return nil, fmt.Errorf("cannot persist a %s value", v.Type())
	}
}

func tableToGo(t *lua.LTable, depth int) (any, error) {
	n := t.Len()
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n > 0 && n == count {
		list := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			item, err := toGo(t.RawGetInt(i), depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	}

	out := make(map[any]any, count)
	var firstErr error
	t.ForEach(func(k, v lua.LValue) {
		if firstErr != nil {
			return
		}
		var key any
		switch k.(type) {
		case lua.LString, lua.LNumber, lua.LBool:
			key, _ = toGo(k, depth)
		default:
			firstErr = fmt.Errorf("cannot persist a table key of type %s", k.Type())
			return
		}
		item, err := toGo(v, depth+1)
		if err != nil {
			firstErr = fmt.Errorf("%v: %w", key, err)
			return
		}
		out[key] = item
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// fromGo converts a decoded yaml value back into a Lua value.
func fromGo(ls *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case uint64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case []any:
		t := ls.CreateTable(len(v), 0)
		for _, item := range v {
			t.Append(fromGo(ls, item))
		}
		return t
	case map[string]any:
		t := ls.CreateTable(0, len(v))
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, fromGo(ls, v[k]))
		}
		return t
	case map[any]any:
		t := ls.CreateTable(0, len(v))
		for k, item := range v {
			t.RawSet(fromGo(ls, k), fromGo(ls, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(v))
	}
}
