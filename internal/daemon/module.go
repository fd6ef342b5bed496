package daemon

import (
	"context"
	"errors"
	"io/fs"

	"github.com/curamed/medisync/internal/api"
	"github.com/curamed/medisync/internal/bus"
	"github.com/curamed/medisync/internal/config"
	"github.com/curamed/medisync/internal/lock"
	"github.com/curamed/medisync/internal/logging"
	"github.com/curamed/medisync/internal/netwatch"
	"github.com/curamed/medisync/internal/profile"
	"github.com/curamed/medisync/internal/remote"
	"github.com/curamed/medisync/internal/status"
	"github.com/curamed/medisync/internal/store"
	intsync "github.com/curamed/medisync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRemoteClient,
			provideWatcher,
			provideSyncEngine,
			provideRouter,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(profile.ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("no config file, running with defaults and no portal credentials",
			zap.String("path", profile.ConfigPath()))
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
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

func provideRemoteClient(cfg *config.Config) *remote.Client {
	return remote.NewClient(cfg.ServerURL, remote.StaticToken(cfg.AuthToken), cfg.RequestTimeout())
}

func provideWatcher(client *remote.Client, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *netwatch.Watcher {
	return netwatch.NewWatcher(client, b, logger, cfg.ProbeInterval())
}

func provideSyncEngine(db *store.DB, client *remote.Client, b *bus.Bus, machine *status.Machine, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, client, b, machine, logger, intsync.Options{
		Interval:     cfg.SyncInterval(),
		OnlineSettle: cfg.OnlineSettle(),
		MaxRetries:   cfg.MaxRetries,
	})
}

func provideRouter(p Params, db *store.DB, engine *intsync.Engine, watcher *netwatch.Watcher, logger *zap.Logger) *api.Router {
	return api.NewRouter(db, engine, watcher, logger, p.ProfileName)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, watcher *netwatch.Watcher, engine *intsync.Engine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(context.Background())
			watcher.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			engine.Stop()
			watcher.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
