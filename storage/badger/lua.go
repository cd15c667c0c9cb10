// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"sync"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/tuplerepo/core"
	"github.com/poiesic/tuplerepo/storage"
	lua "github.com/yuin/gopher-lua"
)

// luaRuntime hosts Lua stored procedures. A single interpreter state is
// shared by all calls and guarded by mu, since an LState is not safe for
// concurrent use.
//
// Scripts see a global `box` table bound to the store:
//
//	box.get(space, key)       -- tuple or nil
//	box.put(space, tuple)     -- stored tuple; box.replace is an alias
//	box.delete(space, key)    -- removed tuple or nil
//	box.select(space [, key]) -- list of tuples
//
// A key is a scalar or a list of scalars. Every global function a script
// defines becomes callable through Store.Call.
type luaRuntime struct {
	mu      sync.Mutex
	state   *lua.LState
	store   *Store
	digests map[string]struct{}
	closed  bool
}

func newLuaRuntime(s *Store) *luaRuntime {
	rt := &luaRuntime{
		state:   lua.NewState(),
		store:   s,
		digests: make(map[string]struct{}),
	}
	box := rt.state.SetFuncs(rt.state.NewTable(), map[string]lua.LGFunction{
		"get":     rt.boxGet,
		"put":     rt.boxPut,
		"replace": rt.boxPut,
		"delete":  rt.boxDelete,
		"select":  rt.boxSelect,
	})
	rt.state.SetGlobal("box", box)
	return rt
}

func (rt *luaRuntime) close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.closed {
		rt.state.Close()
		rt.closed = true
	}
}

// LoadScript runs a Lua chunk, typically one defining procedure functions.
// A script whose content was already loaded is skipped and reports false.
func (s *Store) LoadScript(source string) (bool, error) {
	return s.lua.load(source)
}

// scriptDigest identifies a script by content using BLAKE2b hashing.
func scriptDigest(source string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

func (rt *luaRuntime) load(source string) (bool, error) {
	digest := scriptDigest(source)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return false, storage.ErrStorageClosed
	}
	if _, ok := rt.digests[digest]; ok {
		rt.store.logger.Debug("script already loaded", "digest", digest)
		return false, nil
	}
	if err := rt.state.DoString(source); err != nil {
		return false, fmt.Errorf("%w: load script %s: %w", storage.ErrProcedureFailed, digest, err)
	}
	rt.digests[digest] = struct{}{}
	rt.store.logger.Info("script loaded", "digest", digest)
	return true, nil
}

func (rt *luaRuntime) call(ctx context.Context, name string, args []any) ([]core.Tuple, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil, storage.ErrStorageClosed
	}

	L := rt.state
	fn, ok := L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrProcedureNotFound, name)
	}

	largs := make([]lua.LValue, len(args))
	for i, arg := range args {
		v, err := toLua(L, arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %d: %w", storage.ErrProcedureFailed, name, i, err)
		}
		largs[i] = v
	}

	L.SetContext(ctx)
	defer L.RemoveContext()

	base := L.GetTop()
	if err := L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true}, largs...); err != nil {
		L.SetTop(base)
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrProcedureFailed, name, err)
	}
	n := L.GetTop() - base
	results := make([]lua.LValue, n)
	for i := range results {
		results[i] = L.Get(base + i + 1)
	}
	L.Pop(n)

	tuples, err := resultTuples(results)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrProcedureFailed, name, err)
	}
	return tuples, nil
}

// resultTuples turns procedure return values into tuples. A nil return adds
// nothing, a list of lists adds one tuple per inner list, any other list is
// one tuple, and a scalar is a one-cell tuple.
func resultTuples(values []lua.LValue) ([]core.Tuple, error) {
	var out []core.Tuple
	for _, v := range values {
		if v == lua.LNil {
			continue
		}
		tbl, ok := v.(*lua.LTable)
		if !ok {
			cell, err := fromLua(v)
			if err != nil {
				return nil, err
			}
			out = append(out, core.Tuple{cell})
			continue
		}
		if rows, ok := tableOfTables(tbl); ok {
			for _, row := range rows {
				t, err := tableTuple(row)
				if err != nil {
					return nil, err
				}
				out = append(out, t)
			}
			continue
		}
		t, err := tableTuple(tbl)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func tableOfTables(tbl *lua.LTable) ([]*lua.LTable, bool) {
	if !isList(tbl) {
		return nil, false
	}
	n := tbl.Len()
	rows := make([]*lua.LTable, n)
	for i := range rows {
		row, ok := tbl.RawGetInt(i + 1).(*lua.LTable)
		if !ok {
			return nil, false
		}
		rows[i] = row
	}
	return rows, true
}

func tableTuple(tbl *lua.LTable) (core.Tuple, error) {
	cell, err := fromLua(tbl)
	if err != nil {
		return nil, err
	}
	if list, ok := cell.([]any); ok {
		return core.Tuple(list), nil
	}
	return core.Tuple{cell}, nil
}

// isList reports whether tbl holds exactly the keys 1..n.
func isList(tbl *lua.LTable) bool {
	count := 0
	tbl.ForEach(func(lua.LValue, lua.LValue) { count++ })
	return count == tbl.MaxN()
}

func toLua(L *lua.LState, v any) (lua.LValue, error) {
	switch x := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(x), nil
	case int64:
		return lua.LNumber(x), nil
	case uint64:
		return lua.LNumber(x), nil
	case float64:
		return lua.LNumber(x), nil
	case string:
		return lua.LString(x), nil
	case []byte:
		return lua.LString(x), nil
	case core.Tuple:
		return toLua(L, []any(x))
	case []any:
		tbl := L.CreateTable(len(x), 0)
		for _, item := range x {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			tbl.Append(lv)
		}
		return tbl, nil
	case map[string]any:
		tbl := L.CreateTable(0, len(x))
		for k, item := range x {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			tbl.RawSetString(k, lv)
		}
		return tbl, nil
	}
	return nil, fmt.Errorf("%w: %T has no Lua form", core.ErrInvalidTuple, v)
}

func fromLua(v lua.LValue) (any, error) {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(x), nil
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), nil
		}
		return f, nil
	case lua.LString:
		return string(x), nil
	case *lua.LTable:
		if isList(x) {
			out := make([]any, x.Len())
			for i := range out {
				cell, err := fromLua(x.RawGetInt(i + 1))
				if err != nil {
					return nil, err
				}
				out[i] = cell
			}
			return out, nil
		}
		out := make(map[string]any)
		var err error
		x.ForEach(func(k, item lua.LValue) {
			if err != nil {
				return
			}
			var cell any
			if cell, err = fromLua(item); err == nil {
				out[k.String()] = cell
			}
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: Lua %s has no tuple form", core.ErrInvalidTuple, v.Type())
}

func (rt *luaRuntime) ctx(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func checkKey(L *lua.LState, n int) core.Tuple {
	cell, err := fromLua(L.CheckAny(n))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	if list, ok := cell.([]any); ok {
		return core.Tuple(list)
	}
	return core.Tuple{cell}
}

func pushTuple(L *lua.LState, t core.Tuple) int {
	if t == nil {
		L.Push(lua.LNil)
		return 1
	}
	lv, err := toLua(L, t)
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	L.Push(lv)
	return 1
}

func (rt *luaRuntime) boxGet(L *lua.LState) int {
	space := L.CheckString(1)
	key := checkKey(L, 2)
	t, err := rt.store.Get(rt.ctx(L), space, key)
	if err != nil {
		L.RaiseError("box.get: %s", err.Error())
	}
	return pushTuple(L, t)
}

func (rt *luaRuntime) boxPut(L *lua.LState) int {
	space := L.CheckString(1)
	cell, err := fromLua(L.CheckTable(2))
	if err != nil {
		L.ArgError(2, err.Error())
	}
	list, ok := cell.([]any)
	if !ok {
		L.ArgError(2, "tuple must be a list")
	}
	t, err := rt.store.Put(rt.ctx(L), space, core.Tuple(list))
	if err != nil {
		L.RaiseError("box.put: %s", err.Error())
	}
	return pushTuple(L, t)
}

func (rt *luaRuntime) boxDelete(L *lua.LState) int {
	space := L.CheckString(1)
	key := checkKey(L, 2)
	t, err := rt.store.Delete(rt.ctx(L), space, key)
	if err != nil {
		L.RaiseError("box.delete: %s", err.Error())
	}
	return pushTuple(L, t)
}

func (rt *luaRuntime) boxSelect(L *lua.LState) int {
	space := L.CheckString(1)
	var p storage.Predicate
	if L.GetTop() >= 2 && L.Get(2) != lua.LNil {
		key := checkKey(L, 2)
		fields, err := rt.store.keyFields(space)
		if err != nil {
			L.RaiseError("box.select: %s", err.Error())
		}
		for i, cell := range key {
			if i >= len(fields) {
				break
			}
			p = append(p, storage.Condition{Field: fields[i], Op: storage.OpEq, Value: cell})
		}
	}
	tuples, err := rt.store.Select(rt.ctx(L), space, p)
	if err != nil {
		L.RaiseError("box.select: %s", err.Error())
	}
	out := L.CreateTable(len(tuples), 0)
	for _, t := range tuples {
		lv, err := toLua(L, t)
		if err != nil {
			L.RaiseError("box.select: %s", err.Error())
		}
		out.Append(lv)
	}
	L.Push(out)
	return 1
}
