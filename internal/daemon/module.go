package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dmelo/convd/internal/api"
	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/config"
	"github.com/dmelo/convd/internal/conversation"
	"github.com/dmelo/convd/internal/ingest"
	"github.com/dmelo/convd/internal/lock"
	"github.com/dmelo/convd/internal/logging"
	"github.com/dmelo/convd/internal/status"
	"github.com/dmelo/convd/internal/store"
)

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideIndex,
			provideIngestEngine,
			provideAPIServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath(), cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data directory lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data directory lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.DBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideIndex(db *store.DB, b *bus.Bus, logger *zap.Logger) *conversation.Index {
	return conversation.NewIndex(db, b, logger)
}

func provideIngestEngine(index *conversation.Index, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(index, b, logger)
}

func provideAPIServer(db *store.DB, index *conversation.Index, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *api.Server {
	return api.NewServer(db, index, b, machine, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, engine *ingest.Engine, index *conversation.Index, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start the ingest engine before the HTTP server so no
			// mutation event is published without a consumer.
			engine.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			_ = machine.Transition(status.Loading)
			go func() {
				// Warm the cache so the first list request is served
				// from memory.
				if _, err := index.GetAll(false, nil); err != nil {
					logger.Error("initial conversation load failed", zap.Error(err))
					_ = machine.Transition(status.Degraded)
					return
				}
				_ = machine.Transition(status.Ready)
				logger.Info("conversation cache warmed")
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			engine.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
