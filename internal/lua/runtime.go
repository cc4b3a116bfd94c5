package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/bookd/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

const defaultQueueSize = 100

// LuaWork represents work to be executed on the Lua VM.
// All Lua execution MUST go through this to ensure thread safety
type LuaWork func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L    *lua.LState
	deps RuntimeDeps

	workQueue chan LuaWork

	// Closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	closed  bool
	running chan struct{} // closed when Run returns
}

// NewRuntime creates a new Lua runtime with the log, kv and bookd modules
// preloaded.
func NewRuntime(deps RuntimeDeps) *Runtime {
	if deps.Ctx == nil {
		deps.Ctx = context.Background()
	}
	size := deps.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	r := &Runtime{
		L:         lua.NewState(),
		deps:      deps,
		workQueue: make(chan LuaWork, size),
		closing:   make(chan struct{}),
	}

	r.registerModules()

	return r
}

// Close signals the runtime to stop accepting new work, waits for a running
// worker to drain the queue, and closes the Lua state.
// This is safe to call concurrently with Do/DoSync - they will see the closing signal.
// It must not be called from Lua work.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.closing)
		running := r.running
		r.mu.Unlock()

		if running != nil {
			<-running
		}
		// workQueue is left open to avoid send-on-closed-channel panics.
		r.L.Close()
	})
}

// Do queues work to be executed on the Lua VM (thread-safe, non-blocking)
// Returns false if the runtime is closing, queue is full, or context is cancelled.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSync queues work and blocks until there's space.
func (r *Runtime) DoSync(ctx context.Context, work LuaWork) error {
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- work:
		return nil
	}
}

// DoSyncWithResult queues work, waits for space, and waits for the result.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrappedWork := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrappedWork:
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// enqueue adapts Do for modules, which must not import this package.
func (r *Runtime) enqueue(ctx context.Context, work func(context.Context)) bool {
	// Callbacks outlive the call that scheduled them, so only closing drops them.
	return r.Do(context.WithoutCancel(ctx), LuaWork(work))
}

func (r *Runtime) registerModules() {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)

	if r.deps.KV != nil {
		r.L.PreloadModule("kv", modules.NewKVModule(r.deps.Ctx, r.deps.KV).Loader)
	}

	if r.deps.Client != nil {
		bookd := modules.NewBookdModule(r.deps.Ctx, r.deps.Client, r.deps.Bus, r.deps.History, r.enqueue, r.deps.Quit)
		r.L.PreloadModule("bookd", bookd.Loader)
	}
}

// Run starts the Lua worker goroutine - this is the ONLY goroutine that touches Lua
// It includes panic recovery to prevent crashes from killing the worker.
// Exits when context is cancelled or runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	r.mu.Lock()
	if r.closed || r.running != nil {
		r.mu.Unlock()
		return
	}
	running := make(chan struct{})
	r.running = running
	r.mu.Unlock()
	defer close(running)

	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			r.drainQueue(ctx)
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// drainQueue processes any remaining work in the queue before exiting
func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	// Modules read the context through L.Context()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript loads and executes a Lua script (must be called before Run).
// A relative path that does not exist is resolved against the config
// file's directory.
func (r *Runtime) LoadScript(path string) error {
	if !filepath.IsAbs(path) && r.deps.ConfigPath != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = filepath.Join(filepath.Dir(r.deps.ConfigPath), path)
		}
	}

	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes inline Lua source (must be called before Run).
func (r *Runtime) LoadString(source string) error {
	if err := r.L.DoString(source); err != nil {
		return fmt.Errorf("failed to execute Lua source: %w", err)
	}
	return nil
}
