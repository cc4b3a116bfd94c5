package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/bookd/internal/api"
	"github.com/dokzlo13/bookd/internal/db"
	"github.com/dokzlo13/bookd/internal/kv"
	"github.com/dokzlo13/bookd/internal/ledger"
	"github.com/dokzlo13/bookd/internal/lifecycle"
	"github.com/dokzlo13/bookd/internal/model"
	"github.com/dokzlo13/bookd/internal/reconcile"
	"github.com/dokzlo13/bookd/internal/session"
	"github.com/dokzlo13/bookd/internal/stores"
	"github.com/dokzlo13/bookd/internal/validation"
)

type fixture struct {
	client   *Client
	sessions *session.Store
	ledger   *ledger.Ledger
	calls    atomic.Int32
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	f := &fixture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	database, err := db.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	f.sessions = session.NewStore(kv.NewSQLiteBucket(database.DB, session.BucketName), "", 0)
	f.ledger = ledger.New(database.DB)
	f.client = New(Deps{
		Gateway:   api.NewGateway(srv.URL, api.RoutesFor(api.RoutesModern), 5*time.Second, 100),
		Sessions:  f.sessions,
		Registry:  stores.NewRegistry(nil),
		Validator: validation.New(nil),
		Ledger:    f.ledger,
		Policy:    reconcile.FixedRetry{Retries: 3, Delay: time.Millisecond},
	})
	t.Cleanup(f.client.Close)
	return f
}

func (f *fixture) lastEntry(t *testing.T) ledger.Entry {
	t.Helper()
	entries, err := f.ledger.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestLogin_PersistsSession(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/login", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"_id": "U1", "name": "Ann", "token": "tok"})
	})
	ctx := context.Background()

	sess, err := f.client.Login(ctx, model.LoginRequest{Email: "ann@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "U1", sess.ID())

	state := f.client.Registry().Session().State()
	assert.Equal(t, lifecycle.RequestState{Status: lifecycle.StatusSucceeded, Message: MsgLoggedIn}, state)

	persisted, err := f.sessions.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess, persisted)

	entry := f.lastEntry(t)
	assert.Equal(t, "login", entry.Operation)
	assert.Equal(t, ledger.OutcomeSucceeded, entry.Outcome)
	assert.Equal(t, MsgLoggedIn, entry.Message)
	assert.NotEmpty(t, entry.RequestID)
}

func TestLogin_ServerFailure(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
	})
	ctx := context.Background()

	_, err := f.client.Login(ctx, model.LoginRequest{Email: "ann@example.com", Password: "bad"})
	require.Error(t, err)

	assert.Nil(t, f.client.Session())
	assert.Equal(t, lifecycle.RequestState{Status: lifecycle.StatusFailed, Message: "Invalid credentials"},
		f.client.Registry().Session().State())

	persisted, err := f.sessions.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, persisted)
	assert.Equal(t, ledger.OutcomeFailed, f.lastEntry(t).Outcome)
}

func TestLogin_ValidationNeverReachesStore(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})

	_, err := f.client.Login(context.Background(), model.LoginRequest{Email: "ann@example.com"})
	require.Error(t, err)

	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, lifecycle.StatusIdle, f.client.Registry().Session().State().Status)
	assert.Equal(t, ledger.OutcomeRejected, f.lastEntry(t).Outcome)
}

func TestRegister(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/register", r.URL.Path)
		var body model.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ann", body.Name)
		writeJSON(w, http.StatusCreated, map[string]string{"userId": "U1", "token": "tok"})
	})

	sess, err := f.client.Register(context.Background(), model.RegisterRequest{Name: " Ann ", Email: "ann@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "U1", sess.ID())
	assert.Equal(t, MsgRegistered, f.client.Registry().Session().State().Message)
}

func TestOpenAndLogout(t *testing.T) {
	var authHeader string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logout", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	require.NoError(t, f.sessions.Save(ctx, &model.Session{UserID: "U1", Token: "tok"}))
	require.NoError(t, f.client.Open(ctx))
	assert.Equal(t, "U1", f.client.Session().ID())

	require.NoError(t, f.client.Logout(ctx))
	assert.Equal(t, "Bearer tok", authHeader)
	assert.Nil(t, f.client.Session())
	assert.Equal(t, MsgLoggedOut, f.client.Registry().Session().State().Message)

	persisted, err := f.sessions.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestLogout_FailureKeepsSession(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	require.NoError(t, f.sessions.Save(ctx, &model.Session{UserID: "U1", Token: "tok"}))
	require.NoError(t, f.client.Open(ctx))

	require.Error(t, f.client.Logout(ctx))
	assert.Equal(t, "U1", f.client.Session().ID())
	assert.Equal(t, api.DefaultMessage, f.client.Registry().Session().State().Message)

	persisted, err := f.sessions.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, persisted)
}

func TestRooms(t *testing.T) {
	var mu sync.Mutex
	rooms := []map[string]any{{"_id": "R1", "name": "Suite", "price": 100}}

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/rooms":
			writeJSON(w, http.StatusOK, rooms)
		case r.Method == http.MethodGet && r.URL.Path == "/api/rooms/R1":
			writeJSON(w, http.StatusOK, rooms[0])
		case r.Method == http.MethodPost && r.URL.Path == "/api/rooms":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusCreated, map[string]any{"id": "R2", "name": "Double", "price": 80})
		case r.Method == http.MethodPut && r.URL.Path == "/api/rooms/R1":
			writeJSON(w, http.StatusOK, map[string]any{"_id": "R1", "name": "Royal Suite", "price": 150})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/rooms/R2":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()
	require.NoError(t, f.sessions.Save(ctx, &model.Session{UserID: "U1", Token: "tok"}))
	require.NoError(t, f.client.Open(ctx))

	list, err := f.client.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	room, err := f.client.GetRoom(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "Suite", room.Name)
	assert.Equal(t, "R1", f.client.Registry().Rooms().Value().Selected.ID)

	_, err = f.client.CreateRoom(ctx, model.RoomInput{Name: "Double", Price: 80})
	require.NoError(t, err)
	assert.Len(t, f.client.Registry().Rooms().Value().Rooms, 2)

	_, err = f.client.UpdateRoom(ctx, "R1", model.RoomInput{Name: "Royal Suite", Price: 150})
	require.NoError(t, err)
	catalog := f.client.Registry().Rooms().Value()
	assert.Equal(t, "Royal Suite", catalog.Rooms[0].Name)
	assert.Equal(t, "Royal Suite", catalog.Selected.Name)

	require.NoError(t, f.client.DeleteRoom(ctx, "R2"))
	assert.Len(t, f.client.Registry().Rooms().Value().Rooms, 1)

	_, err = f.client.GetRoom(ctx, "missing")
	assert.True(t, api.IsNotFound(err))
	assert.Equal(t, lifecycle.StatusFailed, f.client.Registry().Rooms().State().Status)
	assert.Len(t, f.client.Registry().Rooms().Value().Rooms, 1)
}

func TestCreateRoom_OverlappingCreatesBothCached(t *testing.T) {
	slowArrived := make(chan struct{})
	release := make(chan struct{})

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		var in model.RoomInput
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in.Name == "Slow" {
			close(slowArrived)
			<-release
		}
		writeJSON(w, http.StatusCreated, map[string]any{"_id": in.Name, "name": in.Name, "price": in.Price})
	})
	ctx := context.Background()
	require.NoError(t, f.sessions.Save(ctx, &model.Session{UserID: "U1", Token: "tok"}))
	require.NoError(t, f.client.Open(ctx))

	type result struct {
		room *model.Room
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		room, err := f.client.CreateRoom(ctx, model.RoomInput{Name: "Slow", Price: 10})
		slow <- result{room, err}
	}()
	<-slowArrived

	fast, err := f.client.CreateRoom(ctx, model.RoomInput{Name: "Fast", Price: 20})
	require.NoError(t, err)
	assert.Equal(t, "Fast", fast.ID)
	close(release)

	got := <-slow
	require.NoError(t, got.err)
	assert.Equal(t, "Slow", got.room.ID)

	ids := make([]string, 0, 2)
	for _, room := range f.client.Registry().Rooms().Value().Rooms {
		ids = append(ids, room.ID)
	}
	assert.ElementsMatch(t, []string{"Fast", "Slow"}, ids)
	assert.Equal(t, lifecycle.StatusSucceeded, f.client.Registry().Rooms().State().Status)

	entries, err := f.ledger.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, ledger.OutcomeSucceeded, e.Outcome)
	}
}

func futureDraft() model.BookingDraft {
	in := time.Now().AddDate(1, 0, 0)
	return model.BookingDraft{
		RoomID:       "R1",
		Name:         "Ann",
		Email:        "ann@example.com",
		CheckInDate:  in.Format(validation.DateLayout),
		CheckOutDate: in.AddDate(0, 0, 2).Format(validation.DateLayout),
	}
}

func TestCreateBooking_RequiresSession(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})

	_, err := f.client.CreateBooking(context.Background(), futureDraft())
	assert.ErrorIs(t, err, validation.ErrSessionRequired)
	assert.Equal(t, lifecycle.StatusIdle, f.client.Registry().Booking().State().Status)
}

func TestCreateBooking_InvalidDates(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	ctx := context.Background()
	require.NoError(t, f.sessions.Save(ctx, &model.Session{UserID: "U1", Token: "tok"}))
	require.NoError(t, f.client.Open(ctx))

	d := futureDraft()
	d.CheckOutDate = d.CheckInDate
	_, err := f.client.CreateBooking(ctx, d)
	require.Error(t, err)
	assert.Equal(t, validation.MsgCheckOutOrder, api.Message(err))
	assert.Nil(t, f.client.LastBooking())
}

func TestCreateBookingThenConfirm(t *testing.T) {
	draft := futureDraft()
	var listCalls atomic.Int32

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/bookings":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "U1", body["userId"])
			assert.Equal(t, "R1", body["roomId"])
			body["_id"] = "B1"
			writeJSON(w, http.StatusCreated, body)
		case r.Method == http.MethodGet && r.URL.Path == "/api/bookings/user/U1":
			listCalls.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
				{"_id": "B1", "roomId": map[string]any{"_id": "R1", "name": "Suite"}, "checkInDate": draft.CheckInDate, "status": "confirmed"},
				{"_id": "B0", "roomId": "R9"},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()
	require.NoError(t, f.sessions.Save(ctx, &model.Session{UserID: "U1", Token: "tok"}))
	require.NoError(t, f.client.Open(ctx))

	booking, err := f.client.CreateBooking(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, "B1", booking.ID)
	assert.Equal(t, draft.CheckInDate, booking.CheckInDate)
	assert.Equal(t, MsgBooked, f.client.Registry().Booking().State().Message)
	assert.Same(t, booking, f.client.LastBooking())

	conf := f.client.Confirm(ctx, booking, nil)
	final := conf.Run()

	assert.Equal(t, reconcile.PhaseResolved, final.Phase)
	require.Len(t, final.Bookings, 2)
	assert.Equal(t, "B1", final.Bookings[0].ID)
	assert.Equal(t, "confirmed", final.Bookings[0].Status)
	assert.Equal(t, "Suite", final.Bookings[0].DisplayRoom())
	assert.Equal(t, draft.CheckInDate, final.Bookings[0].CheckInDate)
	assert.Equal(t, "B0", final.Bookings[1].ID)
	assert.Equal(t, int32(1), listCalls.Load())
}

func TestConfirm_WithoutSession(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})

	final := f.client.Confirm(context.Background(), nil, nil).Run()
	assert.Equal(t, reconcile.PhaseUnauthenticated, final.Phase)
	assert.Equal(t, reconcile.MsgLoginRequired, final.Notice)
}

func TestClose_CancelsConfirmations(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	f.client.policy = reconcile.FixedRetry{Retries: 3, Delay: time.Hour}
	ctx := context.Background()
	require.NoError(t, f.sessions.Save(ctx, &model.Session{UserID: "U1", Token: "tok"}))
	require.NoError(t, f.client.Open(ctx))

	conf := f.client.Confirm(ctx, nil, nil)
	require.Eventually(t, func() bool {
		return conf.View().Phase == reconcile.PhaseRetryScheduled
	}, time.Second, 5*time.Millisecond)

	f.client.Close()
	select {
	case <-conf.Done():
	case <-time.After(time.Second):
		t.Fatal("confirmation still running after Close")
	}
	assert.Nil(t, f.client.Session())
}
