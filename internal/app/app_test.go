package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/bookd/internal/config"
	"github.com/dokzlo13/bookd/internal/model"
)

func loadConfig(t *testing.T, dir, apiURL, backend, script string) *config.Config {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.lua"), []byte(script), 0o644))

	body := "api:\n  base_url: " + apiURL + "\n" +
		"session:\n  backend: " + backend + "\n" +
		"database:\n  path: " + filepath.Join(dir, "bookd.db") + "\n" +
		"script: main.lua\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestApp_ScriptLogsInAndQuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"userId": "U1", "token": "tok"})
	}))
	defer srv.Close()

	cfg := loadConfig(t, t.TempDir(), srv.URL, config.BackendSQLite, `
		local bookd = require("bookd")
		assert(bookd.login({email = "ann@example.com", password = "pw"}))
		bookd.quit()
	`)

	application, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, application.Start(context.Background()))

	waited := make(chan struct{})
	go func() {
		application.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("quit did not stop the app")
	}

	services := application.Services()
	assert.Equal(t, "U1", services.Client.Session().ID())

	persisted, err := services.Sessions.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "U1", persisted.ID())

	rec := httptest.NewRecorder()
	services.Health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","session":true,"user_id":"U1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	services.Health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bookd_gateway_requests_total")

	require.NoError(t, application.Stop())
}

func TestApp_ForgetSession(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "http://127.0.0.1:1", config.BackendSQLite, "")

	application, err := New(cfg)
	require.NoError(t, err)
	defer application.Stop()

	ctx := context.Background()
	sessions := application.Services().Sessions
	require.NoError(t, sessions.Save(ctx, &model.Session{UserID: "U1", Token: "tok"}))

	require.NoError(t, application.ForgetSession(ctx))

	persisted, err := sessions.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestApp_MissingScript(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "http://127.0.0.1:1", config.BackendMemory, "")
	cfg.Script = "absent.lua"

	application, err := New(cfg)
	require.NoError(t, err)
	defer application.Stop()

	assert.Error(t, application.Start(context.Background()))
}

type fakeSessions struct{ sess *model.Session }

func (f fakeSessions) Session() *model.Session { return f.sess }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthService(t *testing.T) {
	cfg := &config.Config{}

	tests := []struct {
		name     string
		path     string
		sessions fakeSessions
		pinger   fakePinger
		code     int
		body     string
	}{
		{"health", "/health", fakeSessions{}, fakePinger{}, http.StatusOK, `{"status":"healthy"}`},
		{"ready without session", "/ready", fakeSessions{}, fakePinger{}, http.StatusOK, `{"status":"ready","session":false}`},
		{"ready with legacy session", "/ready", fakeSessions{&model.Session{LegacyID: "L1"}}, fakePinger{}, http.StatusOK,
			`{"status":"ready","session":true,"user_id":"L1"}`},
		{"backend down", "/ready", fakeSessions{}, fakePinger{errors.New("connection refused")}, http.StatusServiceUnavailable,
			`{"status":"unavailable","error":"connection refused"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthService(cfg, tt.sessions, tt.pinger).Handler()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}
