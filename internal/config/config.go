package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/claridad-app/claridad/internal/chat"
)

// Duration is a time.Duration written as a string ("30s", "5m") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultInstance is the daemon instance used when neither the --instance
// flag nor the config file names one.
const DefaultInstance = "main"

// Config represents the global ~/.claridad/config.toml.
type Config struct {
	// Instance is the daemon instance the binaries attach to by default.
	Instance string         `toml:"instance"`
	Identity IdentityConfig `toml:"identity"`
	Server   ServerConfig   `toml:"server"`
	Cache    CacheConfig    `toml:"cache"`
	Chat     ChatConfig     `toml:"chat"`
	Presence PresenceConfig `toml:"presence"`
}

// IdentityConfig is the user the clients act as.
type IdentityConfig struct {
	UserID       string `toml:"user_id"`
	UserName     string `toml:"user_name"`
	Neighborhood string `toml:"neighborhood"`
	// Home is attached to panic alerts sent from a terminal, which has no
	// device position.
	Home *HomeConfig `toml:"home,omitempty"`
}

type HomeConfig struct {
	Lat float64 `toml:"lat"`
	Lng float64 `toml:"lng"`
}

// HomeLocation returns the configured home as a fallback location, or nil.
func (c IdentityConfig) HomeLocation() *chat.Location {
	if c.Home == nil {
		return nil
	}
	return &chat.Location{Lat: c.Home.Lat, Lng: c.Home.Lng, Fallback: true}
}

// ServerConfig is where the daemon listens and where clients find it.
type ServerConfig struct {
	Addr    string `toml:"addr"`
	BaseURL string `toml:"base_url"`
	// InviteURL is the public join link encoded by `claridadctl invite`.
	InviteURL string `toml:"invite_url"`
}

type CacheConfig struct {
	MessagesTTL   Duration `toml:"messages_ttl"`
	ChatInfoTTL   Duration `toml:"chat_info_ttl"`
	TypingTTL     Duration `toml:"typing_ttl"`
	OnlineTTL     Duration `toml:"online_ttl"`
	SweepInterval Duration `toml:"sweep_interval"`
}

type ChatConfig struct {
	TypingIdle       Duration `toml:"typing_idle"`
	TypingPoll       Duration `toml:"typing_poll"`
	OnlinePoll       Duration `toml:"online_poll"`
	ReconnectInitial Duration `toml:"reconnect_initial"`
	ReconnectMax     Duration `toml:"reconnect_max"`
	HTTPTimeout      Duration `toml:"http_timeout"`
	HistoryLimit     int      `toml:"history_limit"`
}

// PresenceConfig selects the daemon's presence backend.
type PresenceConfig struct {
	// Backend is "sqlite" or "redis".
	Backend       string   `toml:"backend"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	TypingTTL     Duration `toml:"typing_ttl"`
	OnlineTTL     Duration `toml:"online_ttl"`
	PruneInterval Duration `toml:"prune_interval"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Instance: DefaultInstance,
		Server: ServerConfig{
			Addr:      "127.0.0.1:7420",
			BaseURL:   "http://127.0.0.1:7420",
			InviteURL: "https://claridad.app/join",
		},
		Cache: CacheConfig{
			MessagesTTL:   Duration{30 * time.Second},
			ChatInfoTTL:   Duration{5 * time.Minute},
			TypingTTL:     Duration{10 * time.Second},
			OnlineTTL:     Duration{30 * time.Second},
			SweepInterval: Duration{5 * time.Minute},
		},
		Chat: ChatConfig{
			TypingIdle:       Duration{3 * time.Second},
			TypingPoll:       Duration{2 * time.Second},
			OnlinePoll:       Duration{10 * time.Second},
			ReconnectInitial: Duration{500 * time.Millisecond},
			ReconnectMax:     Duration{30 * time.Second},
			HTTPTimeout:      Duration{10 * time.Second},
			HistoryLimit:     500,
		},
		Presence: PresenceConfig{
			Backend:       "sqlite",
			RedisAddr:     "127.0.0.1:6379",
			TypingTTL:     Duration{10 * time.Second},
			OnlineTTL:     Duration{60 * time.Second},
			PruneInterval: Duration{time.Minute},
		},
	}
}

// Load reads config from the given path on top of the defaults. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load that falls back to the defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Presence.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("presence.backend: unknown backend %q", c.Presence.Backend)
	}
	if h := c.Identity.Home; h != nil && (h.Lat < -90 || h.Lat > 90 || h.Lng < -180 || h.Lng > 180) {
		return fmt.Errorf("identity.home: coordinates out of range")
	}
	if c.Chat.TypingIdle.Duration <= 0 {
		return fmt.Errorf("chat.typing_idle must be positive")
	}
	if c.Chat.TypingPoll.Duration <= 0 || c.Chat.OnlinePoll.Duration <= 0 {
		return fmt.Errorf("chat poll intervals must be positive")
	}
	return nil
}

// InstanceName picks the daemon instance: the flag value, then the config
// file, then DefaultInstance.
func (c *Config) InstanceName(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if c.Instance != "" {
		return c.Instance
	}
	return DefaultInstance
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
