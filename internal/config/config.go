// Package config loads coachgw configuration from config.yaml and COACH_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vidasmart/coachgw/internal/coach"
	"github.com/vidasmart/coachgw/internal/events/natspub"
	"github.com/vidasmart/coachgw/internal/guard"
	"github.com/vidasmart/coachgw/internal/provider"
	"github.com/vidasmart/coachgw/internal/provider/openai"
	"github.com/vidasmart/coachgw/internal/stage"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: COACH_SERVER__PORT sets server.port.
const EnvPrefix = "COACH_"

// DefaultPath is read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig           `koanf:"server"`
	Auth      AuthConfig             `koanf:"auth"`
	Log       LogConfig              `koanf:"log"`
	Tracing   TracingConfig          `koanf:"tracing"`
	Storage   StorageConfig          `koanf:"storage"`
	OpenAI    openai.Config          `koanf:"openai"`
	Breaker   provider.BreakerConfig `koanf:"breaker"`
	Coach     coach.Config           `koanf:"coach"`
	Detector  stage.Thresholds       `koanf:"detector"`
	Guard     guard.Thresholds       `koanf:"guard"`
	NATS      natspub.Config         `koanf:"nats"`
	Retention RetentionConfig        `koanf:"retention"`
	RateLimit RateLimitConfig        `koanf:"rate_limit"`
	Prompts   PromptsConfig          `koanf:"prompts"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
}

// AuthConfig protects the internal endpoints. SecretHash is the SHA-256
// hex digest produced by `coach keygen`.
type AuthConfig struct {
	SecretHash string `koanf:"secret_hash"`
	Header     string `koanf:"header"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// RetentionConfig controls the history sweeper. An empty schedule
// disables it.
type RetentionConfig struct {
	Schedule string        `koanf:"schedule"`
	MaxAge   time.Duration `koanf:"max_age"`
}

// RateLimitConfig limits inbound messages per user.
type RateLimitConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Registered int           `koanf:"registered"`
	Anonymous  int           `koanf:"anonymous"`
	Window     time.Duration `koanf:"window"`
}

// PromptsConfig points at a prompt catalog that replaces the embedded one.
type PromptsConfig struct {
	Path string `koanf:"path"`
}

// Default returns the configuration used for every key not set elsewhere.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			RequestTimeout: 30 * time.Second,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   35 * time.Second,
		},
		Auth:      AuthConfig{Header: "X-Internal-Secret"},
		Log:       LogConfig{Level: "info", Format: "json"},
		Tracing:   TracingConfig{ServiceName: "coachgw"},
		Storage:   StorageConfig{Type: "sqlite", SQLite: SQLiteConfig{Path: "coach.db"}},
		OpenAI:    openai.DefaultConfig(),
		Breaker:   provider.DefaultBreakerConfig(),
		Coach:     coach.DefaultConfig(),
		Detector:  stage.DefaultThresholds(),
		Guard:     guard.DefaultThresholds(),
		NATS:      natspub.DefaultConfig(),
		Retention: RetentionConfig{Schedule: "@daily", MaxAge: 90 * 24 * time.Hour},
		RateLimit: RateLimitConfig{Enabled: true, Registered: 10, Anonymous: 3, Window: time.Minute},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), then applies COACH_
// environment overrides on top of Default(). A missing file is not an
// error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// OPENAI_API_KEY is honoured without the prefix.
	if !k.Exists("openai.api_key") {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			k.Set("openai.api_key", key)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.OpenAI.APIKey = substituteEnvVars(cfg.OpenAI.APIKey)
	cfg.Auth.SecretHash = substituteEnvVars(cfg.Auth.SecretHash)
	cfg.NATS.URL = substituteEnvVars(cfg.NATS.URL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Storage.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage.type must be sqlite or memory, got %q", c.Storage.Type)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Registered <= 0 || c.RateLimit.Anonymous <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit: registered, anonymous and window must be positive")
	}
	if err := c.Coach.Validate(); err != nil {
		return fmt.Errorf("coach: %w", err)
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Guard.Validate(); err != nil {
		return fmt.Errorf("guard: %w", err)
	}

	// An explicit purchase or subscription statement on its own must be
	// able to clear the guard's override bar.
	explicit := float64(c.Detector.ExplicitSignalWeight) / float64(c.Detector.SignalSaturation)
	if explicit < c.Guard.OverrideConfidence {
		return fmt.Errorf("detector.explicit_signal_weight/signal_saturation (%.2f) is below guard.override_confidence (%.2f)",
			explicit, c.Guard.OverrideConfidence)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
