package lua

import (
	"context"

	"github.com/dokzlo13/bookd/internal/client"
	"github.com/dokzlo13/bookd/internal/eventbus"
	"github.com/dokzlo13/bookd/internal/kv"
	"github.com/dokzlo13/bookd/internal/lua/modules"
)

// RuntimeDeps groups all dependencies needed by the Lua runtime.
type RuntimeDeps struct {
	// Ctx bounds calls made while the script loads.
	Ctx     context.Context
	Client  *client.Client
	Bus     *eventbus.Bus
	History modules.History
	KV      *kv.Manager
	// Quit is called by bookd.quit().
	Quit func()
	// ConfigPath resolves relative script paths.
	ConfigPath string
	QueueSize  int
}
