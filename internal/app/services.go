package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bookd/internal/api"
	"github.com/dokzlo13/bookd/internal/client"
	"github.com/dokzlo13/bookd/internal/config"
	"github.com/dokzlo13/bookd/internal/db"
	"github.com/dokzlo13/bookd/internal/eventbus"
	"github.com/dokzlo13/bookd/internal/kv"
	"github.com/dokzlo13/bookd/internal/ledger"
	"github.com/dokzlo13/bookd/internal/metrics"
	"github.com/dokzlo13/bookd/internal/reconcile"
	"github.com/dokzlo13/bookd/internal/session"
	"github.com/dokzlo13/bookd/internal/stores"
	"github.com/dokzlo13/bookd/internal/validation"
)

const kvCleanupInterval = 5 * time.Minute

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Redis  *redis.Client // nil unless session.backend is redis
	KV     *kv.Manager
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Client side
	Gateway  *api.Gateway
	Sessions *session.Store
	Registry *stores.Registry
	Client   *client.Client

	// High-level services
	Lua    *LuaService
	Events *EventService
	Health *HealthService
}

// NewServices creates all services with proper dependency injection. quit
// is handed to scripts as bookd.quit().
func NewServices(cfg *config.Config, quit func()) (*Services, error) {
	s := &Services{cfg: cfg}

	metrics.Register()

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Ledger = ledger.New(database.DB)

	if cfg.Session.Backend == config.BackendRedis {
		s.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Address,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
	}

	s.KV, err = kv.NewManager(cfg.Session.Backend, database.DB, s.Redis)
	if err != nil {
		s.Close()
		return nil, err
	}

	loc, err := cfg.Validation.Location()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("invalid validation timezone: %w", err)
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.Gateway = api.NewGateway(cfg.API.BaseURL, api.RoutesFor(cfg.API.Routes), cfg.API.Timeout.Duration(), cfg.API.RateLimitRPS)
	s.Sessions = session.NewStore(s.KV.Bucket(session.BucketName), cfg.Session.Key, cfg.Session.TTL.Duration())
	s.Registry = stores.NewRegistry(s.Bus)

	s.Client = client.New(client.Deps{
		Gateway:   s.Gateway,
		Sessions:  s.Sessions,
		Registry:  s.Registry,
		Validator: validation.New(loc),
		Ledger:    s.Ledger,
		Bus:       s.Bus,
		Policy: reconcile.FixedRetry{
			Retries: cfg.Reconciler.GetRetryBudget(),
			Delay:   cfg.Reconciler.RetryDelay.Duration(),
		},
	})

	s.Lua = NewLuaService(cfg, s.Client, s.Bus, s.Ledger, s.KV, quit)
	s.Events = NewEventService(s.Bus)
	s.Health = NewHealthService(cfg, s.Client, s.KV)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if err := s.KV.Ping(ctx); err != nil {
		return fmt.Errorf("session backend unavailable: %w", err)
	}

	// Seed the session before the script can observe it
	if err := s.Client.Open(ctx); err != nil {
		return err
	}

	s.Events.Start()
	s.KV.StartCleanup(ctx, kvCleanupInterval)
	go s.Ledger.RunCleanup(ctx, s.cfg.Ledger.CleanupInterval.Duration(), s.cfg.Ledger.Retention())

	// Load Lua script before starting worker
	if err := s.Lua.LoadScript(); err != nil {
		return err
	}

	s.Lua.Start(ctx)
	s.Health.Start(ctx)

	return nil
}

// ForgetSession drops the persisted session.
func (s *Services) ForgetSession(ctx context.Context) error {
	return s.Client.ForgetSession(ctx)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources. Pending confirmations are cancelled first so
// nothing publishes into a closed bus.
func (s *Services) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.KV != nil {
		s.KV.StopCleanup()
	}
	if s.Gateway != nil {
		s.Gateway.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
