package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bookd/internal/config"
)

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new App instance with all services initialized but not started.
func New(cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	services, err := NewServices(cfg, a.Quit)
	if err != nil {
		return nil, err
	}
	a.services = services

	return a, nil
}

// Start initializes and starts all services.
// The provided context is used for cancellation.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	if err := a.services.Start(a.ctx); err != nil {
		return err
	}

	log.Info().Str("api", a.cfg.API.BaseURL).Msg("bookd started")
	return nil
}

// Quit cancels the app context. Safe to call before Start and more than once.
func (a *App) Quit() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		log.Info().Msg("Quit requested")
		cancel()
	}
}

// Stop gracefully shuts down all services.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	a.Quit()

	if a.services != nil {
		return a.services.Stop()
	}

	return nil
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()

	if ctx != nil {
		<-ctx.Done()
	}
}

// ForgetSession clears the persisted session.
// This is used on startup with the --logout flag.
func (a *App) ForgetSession(ctx context.Context) error {
	if a.services != nil {
		return a.services.ForgetSession(ctx)
	}
	return nil
}

// Services exposes the wired services.
func (a *App) Services() *Services {
	return a.services
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
