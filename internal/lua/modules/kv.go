package modules

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/bookd/internal/kv"
)

const bucketTypeName = "kv_bucket"

// KVModule gives scripts their own buckets on the configured kv backend.
type KVModule struct {
	ctx     context.Context
	manager *kv.Manager
}

// NewKVModule creates a new KV module.
func NewKVModule(ctx context.Context, manager *kv.Manager) *KVModule {
	return &KVModule{ctx: ctx, manager: manager}
}

// Loader is the module loader for Lua.
func (m *KVModule) Loader(L *lua.LState) int {
	mt := L.NewTypeMetatable(bucketTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"store":  m.bucketStore,
		"get":    m.bucketGet,
		"exists": m.bucketExists,
		"delete": m.bucketDelete,
		"keys":   m.bucketKeys,
		"clear":  m.bucketClear,
	}))

	mod := L.NewTable()
	L.SetField(mod, "bucket", L.NewFunction(m.bucket))
	L.SetField(mod, "backend", lua.LString(m.manager.Backend()))

	L.Push(mod)
	return 1
}

func (m *KVModule) context(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return m.ctx
}

// bucket(name) -> Bucket
func (m *KVModule) bucket(L *lua.LState) int {
	name := L.CheckString(1)

	ud := L.NewUserData()
	ud.Value = m.manager.Bucket(name)
	L.SetMetatable(ud, L.GetTypeMetatable(bucketTypeName))

	L.Push(ud)
	return 1
}

func checkBucket(L *lua.LState, pos int) kv.Bucket {
	ud := L.CheckUserData(pos)
	if bucket, ok := ud.Value.(kv.Bucket); ok {
		return bucket
	}
	L.ArgError(pos, "bucket expected")
	return nil
}

// store(key, value, opts)
// opts: { ttl = seconds }
func (m *KVModule) bucketStore(L *lua.LState) int {
	bucket := checkBucket(L, 1)
	key := L.CheckString(2)
	value := LuaToGo(L.Get(3))

	var opts *kv.StoreOptions
	if optsTable := L.OptTable(4, nil); optsTable != nil {
		if ttl, ok := L.GetField(optsTable, "ttl").(lua.LNumber); ok {
			opts = &kv.StoreOptions{TTL: time.Duration(float64(ttl) * float64(time.Second))}
		}
	}

	if err := bucket.Store(m.context(L), key, value, opts); err != nil {
		log.Warn().Err(err).
			Str("bucket", bucket.Name()).
			Str("key", key).
			Msg("Failed to store value")
	}
	return 0
}

// get(key) -> value | nil
func (m *KVModule) bucketGet(L *lua.LState) int {
	bucket := checkBucket(L, 1)
	key := L.CheckString(2)

	var value any
	found, err := bucket.Get(m.context(L), key, &value)
	if err != nil {
		log.Warn().Err(err).
			Str("bucket", bucket.Name()).
			Str("key", key).
			Msg("Failed to get value")
	}
	if err != nil || !found {
		L.Push(lua.LNil)
		return 1
	}

	L.Push(GoToLuaValue(L, value))
	return 1
}

// exists(key) -> bool
func (m *KVModule) bucketExists(L *lua.LState) int {
	bucket := checkBucket(L, 1)
	key := L.CheckString(2)

	exists, err := bucket.Exists(m.context(L), key)
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Str("key", key).Msg("Failed to check key")
	}
	L.Push(lua.LBool(exists))
	return 1
}

// delete(key) -> bool
func (m *KVModule) bucketDelete(L *lua.LState) int {
	bucket := checkBucket(L, 1)
	key := L.CheckString(2)

	deleted, err := bucket.Delete(m.context(L), key)
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Str("key", key).Msg("Failed to delete key")
	}
	L.Push(lua.LBool(deleted))
	return 1
}

// keys() -> table
func (m *KVModule) bucketKeys(L *lua.LState) int {
	bucket := checkBucket(L, 1)

	tbl := L.NewTable()
	keys, err := bucket.Keys(m.context(L))
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Msg("Failed to list keys")
	}
	for _, key := range keys {
		tbl.Append(lua.LString(key))
	}

	L.Push(tbl)
	return 1
}

// clear()
func (m *KVModule) bucketClear(L *lua.LState) int {
	bucket := checkBucket(L, 1)

	if err := bucket.Clear(m.context(L)); err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Msg("Failed to clear bucket")
	}
	return 0
}
