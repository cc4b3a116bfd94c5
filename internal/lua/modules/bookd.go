package modules

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/bookd/internal/api"
	"github.com/dokzlo13/bookd/internal/client"
	"github.com/dokzlo13/bookd/internal/eventbus"
	"github.com/dokzlo13/bookd/internal/ledger"
	"github.com/dokzlo13/bookd/internal/model"
	"github.com/dokzlo13/bookd/internal/reconcile"
)

// Executor queues work on the Lua worker. It reports false when the work
// was dropped.
type Executor func(ctx context.Context, work func(ctx context.Context)) bool

// History lists recent ledger entries.
type History interface {
	Recent(ctx context.Context, limit int) ([]ledger.Entry, error)
}

// BookdModule exposes the client to scripts.
//
// Every remote operation takes an optional trailing callback. Without it the
// call blocks the worker and returns (result, err). With it the call runs in
// the background and cb(result, err) is queued on the worker.
type BookdModule struct {
	ctx     context.Context
	client  *client.Client
	bus     *eventbus.Bus
	history History
	exec    Executor
	quit    func()
}

// NewBookdModule creates the module. ctx is used for calls made while the
// script is loading, before the worker supplies its own.
func NewBookdModule(ctx context.Context, c *client.Client, bus *eventbus.Bus, history History, exec Executor, quit func()) *BookdModule {
	return &BookdModule{
		ctx:     ctx,
		client:  c,
		bus:     bus,
		history: history,
		exec:    exec,
		quit:    quit,
	}
}

// Loader is the module loader for Lua.
func (m *BookdModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetFuncs(mod, map[string]lua.LGFunction{
		"session":      m.session,
		"register":     m.register,
		"login":        m.login,
		"logout":       m.logout,
		"rooms":        m.rooms,
		"room":         m.room,
		"create_room":  m.createRoom,
		"update_room":  m.updateRoom,
		"delete_room":  m.deleteRoom,
		"book":         m.book,
		"last_booking": m.lastBooking,
		"confirm":      m.confirm,
		"state":        m.state,
		"reset":        m.reset,
		"on":           m.on,
		"history":      m.historyFn,
		"quit":         m.quitFn,
	})

	L.Push(mod)
	return 1
}

func (m *BookdModule) context(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return m.ctx
}

// call runs fn either inline or in the background, see BookdModule.
func (m *BookdModule) call(L *lua.LState, cbIdx int, fn func(ctx context.Context) (any, error)) int {
	cb := L.OptFunction(cbIdx, nil)
	ctx := m.context(L)

	if cb == nil {
		res, err := fn(ctx)
		return pushResult(L, res, err)
	}

	go func() {
		res, err := fn(ctx)
		m.exec(ctx, func(context.Context) {
			args := []lua.LValue{ToLua(L, res), lua.LNil}
			if err != nil {
				args = []lua.LValue{lua.LNil, lua.LString(api.Message(err))}
			}
			invoke(L, cb, args...)
		})
	}()
	return 0
}

func pushResult(L *lua.LState, res any, err error) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(api.Message(err)))
		return 2
	}
	L.Push(ToLua(L, res))
	return 1
}

func invoke(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) {
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
		log.Error().Err(err).Msg("Lua callback failed")
	}
}

// decodeArg reads argument idx as a table into out, raising a Lua error on
// a malformed table.
func decodeArg(L *lua.LState, idx int, out any) {
	if err := FromLua(L.CheckTable(idx), out); err != nil {
		L.ArgError(idx, err.Error())
	}
}

// session() -> table|nil
func (m *BookdModule) session(L *lua.LState) int {
	L.Push(ToLua(L, m.client.Session()))
	return 1
}

// register({name, email, password}[, cb])
func (m *BookdModule) register(L *lua.LState) int {
	var req model.RegisterRequest
	decodeArg(L, 1, &req)
	return m.call(L, 2, func(ctx context.Context) (any, error) {
		return m.client.Register(ctx, req)
	})
}

// login({email, password}[, cb])
func (m *BookdModule) login(L *lua.LState) int {
	var req model.LoginRequest
	decodeArg(L, 1, &req)
	return m.call(L, 2, func(ctx context.Context) (any, error) {
		return m.client.Login(ctx, req)
	})
}

// logout([cb])
func (m *BookdModule) logout(L *lua.LState) int {
	return m.call(L, 1, func(ctx context.Context) (any, error) {
		return true, m.client.Logout(ctx)
	})
}

// rooms([cb])
func (m *BookdModule) rooms(L *lua.LState) int {
	return m.call(L, 1, func(ctx context.Context) (any, error) {
		return m.client.ListRooms(ctx)
	})
}

// room(id[, cb])
func (m *BookdModule) room(L *lua.LState) int {
	id := L.CheckString(1)
	return m.call(L, 2, func(ctx context.Context) (any, error) {
		return m.client.GetRoom(ctx, id)
	})
}

// create_room({name, description, price, images}[, cb])
func (m *BookdModule) createRoom(L *lua.LState) int {
	var in model.RoomInput
	decodeArg(L, 1, &in)
	return m.call(L, 2, func(ctx context.Context) (any, error) {
		return m.client.CreateRoom(ctx, in)
	})
}

// update_room(id, {...}[, cb])
func (m *BookdModule) updateRoom(L *lua.LState) int {
	id := L.CheckString(1)
	var in model.RoomInput
	decodeArg(L, 2, &in)
	return m.call(L, 3, func(ctx context.Context) (any, error) {
		return m.client.UpdateRoom(ctx, id, in)
	})
}

// delete_room(id[, cb])
func (m *BookdModule) deleteRoom(L *lua.LState) int {
	id := L.CheckString(1)
	return m.call(L, 2, func(ctx context.Context) (any, error) {
		return true, m.client.DeleteRoom(ctx, id)
	})
}

// book({roomId, name, email, checkInDate, checkOutDate}[, cb])
func (m *BookdModule) book(L *lua.LState) int {
	var draft model.BookingDraft
	decodeArg(L, 1, &draft)
	return m.call(L, 2, func(ctx context.Context) (any, error) {
		return m.client.CreateBooking(ctx, draft)
	})
}

// last_booking() -> table|nil
func (m *BookdModule) lastBooking(L *lua.LState) int {
	L.Push(ToLua(L, m.client.LastBooking()))
	return 1
}

// confirm(booking|nil[, cb]) -> handle{view(), cancel(), id}
func (m *BookdModule) confirm(L *lua.LState) int {
	var optimistic *model.Booking
	if tbl, ok := L.Get(1).(*lua.LTable); ok {
		optimistic = &model.Booking{}
		if err := FromLua(tbl, optimistic); err != nil {
			L.ArgError(1, err.Error())
			return 0
		}
	}
	cb := L.OptFunction(2, nil)
	ctx := m.context(L)

	// conf is assigned before any queued view runs: both happen on the worker.
	var conf *reconcile.Confirmation
	var onChange func(reconcile.View)
	if cb != nil {
		onChange = func(v reconcile.View) {
			m.exec(ctx, func(context.Context) {
				// Views queued before handle.cancel() are dropped.
				if conf.Cancelled() {
					return
				}
				invoke(L, cb, viewToLua(L, v))
			})
		}
	}

	conf = m.client.Confirm(ctx, optimistic, onChange)

	handle := L.NewTable()
	L.SetField(handle, "id", lua.LString(conf.ID()))
	L.SetField(handle, "view", L.NewFunction(func(L *lua.LState) int {
		L.Push(viewToLua(L, conf.View()))
		return 1
	}))
	L.SetField(handle, "cancel", L.NewFunction(func(L *lua.LState) int {
		conf.Cancel()
		return 0
	}))
	L.Push(handle)
	return 1
}

func viewToLua(L *lua.LState, v reconcile.View) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "id", lua.LString(v.ID))
	L.SetField(tbl, "phase", lua.LString(v.Phase.String()))
	L.SetField(tbl, "settled", lua.LBool(v.Phase.Terminal()))
	L.SetField(tbl, "attempts", lua.LNumber(v.Attempts))
	L.SetField(tbl, "notice", lua.LString(v.Notice))
	if v.Err != nil {
		L.SetField(tbl, "error", lua.LString(api.Message(v.Err)))
	}

	bookings := L.NewTable()
	for _, b := range v.Bookings {
		row, ok := ToLua(L, b).(*lua.LTable)
		if !ok {
			continue
		}
		L.SetField(row, "room_label", lua.LString(b.DisplayRoom()))
		L.SetField(row, "status_label", lua.LString(b.DisplayStatus()))
		bookings.Append(row)
	}
	L.SetField(tbl, "bookings", bookings)
	return tbl
}

// state(resource) -> {status, message}
func (m *BookdModule) state(L *lua.LState) int {
	name := L.CheckString(1)
	res, ok := m.client.Registry().Lookup(name)
	if !ok {
		L.ArgError(1, "unknown resource: "+name)
		return 0
	}

	st := res.State()
	tbl := L.NewTable()
	L.SetField(tbl, "status", lua.LString(st.Status.String()))
	L.SetField(tbl, "message", lua.LString(st.Message))
	L.Push(tbl)
	return 1
}

// reset(resource)
func (m *BookdModule) reset(L *lua.LState) int {
	name := L.CheckString(1)
	res, ok := m.client.Registry().Lookup(name)
	if !ok {
		L.ArgError(1, "unknown resource: "+name)
		return 0
	}
	res.Reset()
	return 0
}

// on(event, cb): cb(data) is queued on the worker for every event.
func (m *BookdModule) on(L *lua.LState) int {
	name := L.CheckString(1)
	cb := L.CheckFunction(2)
	ctx := m.context(L)
	if m.bus == nil {
		L.RaiseError("events are not available")
		return 0
	}

	m.bus.Subscribe(eventbus.EventType(name), func(e eventbus.Event) {
		m.exec(ctx, func(context.Context) {
			data := MapToLuaTable(L, e.Data)
			L.SetField(data, "event", lua.LString(string(e.Type)))
			invoke(L, cb, data)
		})
	})
	return 0
}

// history([n]) -> list of entries, newest first
func (m *BookdModule) historyFn(L *lua.LState) int {
	limit := L.OptInt(1, 10)
	if m.history == nil {
		L.Push(L.NewTable())
		return 1
	}

	entries, err := m.history.Recent(m.context(L), limit)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	list := L.NewTable()
	for _, e := range entries {
		row := L.NewTable()
		L.SetField(row, "operation", lua.LString(e.Operation))
		L.SetField(row, "resource", lua.LString(e.Resource))
		L.SetField(row, "outcome", lua.LString(string(e.Outcome)))
		L.SetField(row, "message", lua.LString(e.Message))
		L.SetField(row, "request_id", lua.LString(e.RequestID))
		L.SetField(row, "timestamp", lua.LString(e.Timestamp.Format(time.RFC3339)))
		list.Append(row)
	}
	L.Push(list)
	return 1
}

// quit() asks the daemon to shut down.
func (m *BookdModule) quitFn(L *lua.LState) int {
	if m.quit != nil {
		m.quit()
	}
	return 0
}
