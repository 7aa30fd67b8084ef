// Package config loads boxrelay configuration from TOML, .env and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides, e.g. BOXRELAY_BACKEND_URL.
const EnvPrefix = "BOXRELAY_"

// Media delivery modes.
const (
	MediaModePassthrough = "passthrough"
	MediaModeDownload    = "download"
)

// Config represents the relay configuration
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Telegram TelegramConfig `koanf:"telegram"`
	Backend  BackendConfig  `koanf:"backend"`
	Media    MediaConfig    `koanf:"media"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the inbound HTTP listener settings
type ServerConfig struct {
	Address      string        `koanf:"address"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// TelegramConfig holds Bot API settings
type TelegramConfig struct {
	Token         string        `koanf:"token"`
	APIURL        string        `koanf:"api_url"`
	Timeout       time.Duration `koanf:"timeout"`
	PollTimeout   time.Duration `koanf:"poll_timeout"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	Burst         int           `koanf:"burst"`
}

// BackendConfig holds settings for the authoritative alert backend
type BackendConfig struct {
	URL             string        `koanf:"url"`
	Timeout         time.Duration `koanf:"timeout"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// MediaConfig controls how alert images and videos are resolved
type MediaConfig struct {
	BaseDir         string        `koanf:"base_dir"`
	Mode            string        `koanf:"mode"` // passthrough, download
	MaxBytes        int64         `koanf:"max_bytes"`
	DownloadTimeout time.Duration `koanf:"download_timeout"`
}

// DispatchConfig bounds the fan-out
type DispatchConfig struct {
	Concurrency int           `koanf:"concurrency"`
	SendTimeout time.Duration `koanf:"send_timeout"`
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info
	Format string `koanf:"format"` // text, json
}

// LoadOptions configures how configuration is loaded
type LoadOptions struct {
	ConfigPath string
	EnvFile    string
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8002",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Telegram: TelegramConfig{
			APIURL:        "https://api.telegram.org",
			Timeout:       15 * time.Second,
			PollTimeout:   30 * time.Second,
			RatePerSecond: 25,
			Burst:         5,
		},
		Backend: BackendConfig{
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Media: MediaConfig{
			BaseDir:         "media",
			Mode:            MediaModePassthrough,
			MaxBytes:        20 << 20,
			DownloadTimeout: 15 * time.Second,
		},
		Dispatch: DispatchConfig{
			Concurrency: 16,
			SendTimeout: 20 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from defaults, the optional TOML file, a .env file
// and BOXRELAY_* environment variables, in increasing order of precedence.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := k.Load(file.Provider(opts.ConfigPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		// BOXRELAY_MEDIA_BASE_DIR -> media.base_dir
		return envToKey(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyLegacyEnv(cfg)
	return cfg, nil
}

// Validate reports the first setting that prevents the relay from running.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(c.Backend.URL) == "" {
		return fmt.Errorf("backend.url is required")
	}
	switch c.Media.Mode {
	case MediaModePassthrough, MediaModeDownload:
	default:
		return fmt.Errorf("media.mode must be %q or %q, got %q", MediaModePassthrough, MediaModeDownload, c.Media.Mode)
	}
	if c.Dispatch.Concurrency < 1 {
		return fmt.Errorf("dispatch.concurrency must be positive")
	}
	if c.Server.WriteTimeout > 0 && c.Dispatch.SendTimeout > 0 {
		if need := c.FanOutWave(); c.Server.WriteTimeout < need {
			return fmt.Errorf("server.write_timeout (%s) must cover one fan-out wave (%s): dispatch.send_timeout plus media.download_timeout in download mode",
				c.Server.WriteTimeout, need)
		}
	}
	return nil
}

// FanOutWave is the longest an alert takes to reach up to dispatch.concurrency
// recipients: one media download (download mode only) and one send timeout.
// Alerts with more recipients than dispatch.concurrency take one wave per
// batch, and the intake response waits for all of them.
func (c *Config) FanOutWave() time.Duration {
	d := c.Dispatch.SendTimeout
	if c.Media.Mode == MediaModeDownload {
		d += c.Media.DownloadTimeout
	}
	return d
}

// Debug reports whether debug logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.Logging.Level, "debug")
}

// applyLegacyEnv honours the variable names used by earlier deployments of the bot.
func applyLegacyEnv(cfg *Config) {
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("BOT_TOKEN")
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = os.Getenv("DJANGO_API_URL")
	}
}

// envToKey converts an environment variable suffix to a config key. The
// first underscore separates the section, the rest belong to the field name:
// MEDIA_BASE_DIR -> media.base_dir
func envToKey(s string) string {
	s = strings.ToLower(s)
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + field
}
