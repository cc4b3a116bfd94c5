package app

import (
	"context"

	"github.com/dokzlo13/bookd/internal/client"
	"github.com/dokzlo13/bookd/internal/config"
	"github.com/dokzlo13/bookd/internal/eventbus"
	"github.com/dokzlo13/bookd/internal/kv"
	luart "github.com/dokzlo13/bookd/internal/lua"
	"github.com/dokzlo13/bookd/internal/lua/modules"
)

// LuaService wraps the Lua runtime and provides thread-safe execution.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
}

// NewLuaService creates a new LuaService.
func NewLuaService(
	cfg *config.Config,
	c *client.Client,
	bus *eventbus.Bus,
	history modules.History,
	kvm *kv.Manager,
	quit func(),
) *LuaService {
	runtime := luart.NewRuntime(luart.RuntimeDeps{
		Ctx:        context.Background(),
		Client:     c,
		Bus:        bus,
		History:    history,
		KV:         kvm,
		Quit:       quit,
		ConfigPath: cfg.Path,
	})

	return &LuaService{
		cfg:     cfg,
		Runtime: runtime,
	}
}

// LoadScript loads and executes the Lua script.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	return s.Runtime.LoadScript(s.cfg.Script)
}

// Start begins the Lua worker goroutine.
func (s *LuaService) Start(ctx context.Context) {
	// This is the ONLY goroutine that touches Lua
	go s.Runtime.Run(ctx)
}

// Close stops the worker, letting queued callbacks finish, and closes the
// Lua runtime.
func (s *LuaService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
