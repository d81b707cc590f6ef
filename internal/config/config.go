package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/huntops.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	Debug    bool       `env:"DEBUG" envDefault:"false"`

	// Remote asset/config endpoint. An empty base URL disables all remote
	// pushes; local writes still happen.
	RemoteBaseURL string   `env:"REMOTE_BASE_URL"`
	RemoteHeaders []string `env:"REMOTE_HEADERS" envSeparator:","`

	// Treasure authoring.
	MinValidationScore int    `env:"MIN_VALIDATION_SCORE" envDefault:"75"`
	SessionQuota       int    `env:"SESSION_QUOTA" envDefault:"6"`
	ConfigPath         string `env:"CONFIG_PATH" envDefault:"data/treasure-config.json"`
	StaticDir          string `env:"STATIC_DIR" envDefault:"static"`

	// External image-quality validator.
	ValidatorCmd          string        `env:"VALIDATOR_CMD" envDefault:"arcoreimg"`
	ValidatorTimeout      time.Duration `env:"VALIDATOR_TIMEOUT" envDefault:"15s"`
	ValidatorFallback     string        `env:"VALIDATOR_FALLBACK" envDefault:"reject"`
	ValidatorDefaultScore int           `env:"VALIDATOR_DEFAULT_SCORE" envDefault:"0"`

	// Initial admin account, seeded only when no admin exists yet.
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.MinValidationScore < 0 || cfg.MinValidationScore > 100 {
		return nil, fmt.Errorf("MIN_VALIDATION_SCORE must be in 0..100, got %d", cfg.MinValidationScore)
	}
	switch cfg.ValidatorFallback {
	case "reject", "unverified":
	default:
		return nil, fmt.Errorf("VALIDATOR_FALLBACK must be reject or unverified, got %q", cfg.ValidatorFallback)
	}
	return &cfg, nil
}

// Headers parses REMOTE_HEADERS entries of the form "Name: value" into a map
// applied to every remote call.
func (c *Config) Headers() map[string]string {
	h := make(map[string]string, len(c.RemoteHeaders))
	for _, entry := range c.RemoteHeaders {
		name, value, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		h[name] = strings.TrimSpace(value)
	}
	return h
}
