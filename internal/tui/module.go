package tui

import (
	"context"
	"fmt"

	"github.com/claridad-app/claridad/internal/bus"
	"github.com/claridad-app/claridad/internal/cache"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/chatview"
	"github.com/claridad-app/claridad/internal/client"
	"github.com/claridad-app/claridad/internal/config"
	"github.com/claridad-app/claridad/internal/coordinator"
	"github.com/claridad-app/claridad/internal/logging"
	"github.com/claridad-app/claridad/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Params holds what the terminal client is started with.
type Params struct {
	SessionName string
	Config      *config.Config // optional; nil = load the global config file
}

// Module wires the cache, coordinator and view model behind the App.
func Module(p Params) fx.Option {
	return fx.Module("tui",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideCache,
			provideClient,
			provideCoordinator,
			provideViewModel,
			provideApp,
		),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOrDefault(session.ConfigPath()); err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := session.ValidateUserID(cfg.Identity.UserID); err != nil {
		return nil, fmt.Errorf("identity.user_id: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.NewWithLevel(session.LogPath(p.SessionName, "claridad-tui"), p.SessionName, zapcore.InfoLevel, false)
}

func provideCache(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) *cache.Store {
	cc := cfg.Cache
	s := cache.New(cache.Config{
		MessagesTTL:   cc.MessagesTTL.Duration,
		ChatInfoTTL:   cc.ChatInfoTTL.Duration,
		TypingTTL:     cc.TypingTTL.Duration,
		OnlineTTL:     cc.OnlineTTL.Duration,
		SweepInterval: cc.SweepInterval.Duration,
	}, logger)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			s.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			s.Stop()
			return nil
		},
	})
	return s
}

func provideClient(cfg *config.Config, logger *zap.Logger) (*client.Client, error) {
	return client.New(cfg.Server.BaseURL, cfg.Chat.HTTPTimeout.Duration, logger)
}

func provideCoordinator(c *client.Client, store *cache.Store, cfg *config.Config, logger *zap.Logger) *coordinator.Coordinator {
	return coordinator.New(c, store, bus.New(), coordinator.Config{
		ReconnectInitial: cfg.Chat.ReconnectInitial.Duration,
		ReconnectMax:     cfg.Chat.ReconnectMax.Duration,
	}, logger)
}

func provideViewModel(coord *coordinator.Coordinator, store *cache.Store, cfg *config.Config, logger *zap.Logger) *chatview.ViewModel {
	return chatview.New(coord, store, chatview.Config{
		TypingIdle: cfg.Chat.TypingIdle.Duration,
		TypingPoll: cfg.Chat.TypingPoll.Duration,
		OnlinePoll: cfg.Chat.OnlinePoll.Duration,
	}, logger)
}

func provideApp(vm *chatview.ViewModel, c *client.Client, cfg *config.Config, logger *zap.Logger) *App {
	return NewApp(vm, c, Options{
		Identity:  chat.Identity{UserID: cfg.Identity.UserID, UserName: cfg.Identity.UserName},
		InviteURL: cfg.Server.InviteURL,
		Home:      cfg.Identity.HomeLocation(),
	}, logger)
}
