package daemon

import (
	"context"
	"fmt"
	"net/http"

	"github.com/claridad-app/claridad/internal/api"
	"github.com/claridad-app/claridad/internal/bus"
	"github.com/claridad-app/claridad/internal/config"
	"github.com/claridad-app/claridad/internal/coordinator"
	"github.com/claridad-app/claridad/internal/lock"
	"github.com/claridad-app/claridad/internal/logging"
	"github.com/claridad-app/claridad/internal/presence"
	"github.com/claridad-app/claridad/internal/session"
	"github.com/claridad-app/claridad/internal/store"
	intsync "github.com/claridad-app/claridad/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved daemon configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load the global config file
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			providePresence,
			provideEngine,
			providePruner,
			api.NewChannelService,
			api.NewMessageService,
			api.NewPresenceService,
			api.NewStreamService,
			provideRouter,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	return logging.New(session.LogPath(p.SessionName, "claridadd"), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), cfg.Server.Addr)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by a second
// daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, result, err := store.OpenMigrated(dbPath)
	if err != nil {
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

func providePresence(lc fx.Lifecycle, cfg *config.Config, db *store.DB, logger *zap.Logger) (coordinator.PresenceStore, error) {
	pc := cfg.Presence
	switch pc.Backend {
	case "", "sqlite":
		logger.Info("presence backend: sqlite")
		return store.NewPresence(db, pc.TypingTTL.Duration, pc.OnlineTTL.Duration), nil
	case "redis":
		r, err := presence.NewRedis(context.Background(), presence.RedisConfig{
			Address:   pc.RedisAddr,
			Password:  pc.RedisPassword,
			DB:        pc.RedisDB,
			TypingTTL: pc.TypingTTL.Duration,
			OnlineTTL: pc.OnlineTTL.Duration,
		})
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(r.Close))
		logger.Info("presence backend: redis", zap.String("addr", pc.RedisAddr))
		return r, nil
	default:
		return nil, fmt.Errorf("unknown presence backend %q", pc.Backend)
	}
}

func provideEngine(cfg *config.Config, db *store.DB, pr coordinator.PresenceStore, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	e := intsync.NewEngine(db, pr, b, logger)
	e.HistoryLimit = cfg.Chat.HistoryLimit
	return e
}

func providePruner(cfg *config.Config, db *store.DB, logger *zap.Logger) *intsync.Pruner {
	pc := cfg.Presence
	return intsync.NewPruner(db, pc.TypingTTL.Duration, pc.OnlineTTL.Duration, pc.PruneInterval.Duration, logger)
}

func provideRouter(ch *api.ChannelService, msg *api.MessageService, pr *api.PresenceService, st *api.StreamService, logger *zap.Logger) http.Handler {
	return api.NewRouter(ch, msg, pr, st, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, pruner *intsync.Pruner, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			pruner.Start(context.Background())
			srv.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			pruner.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
