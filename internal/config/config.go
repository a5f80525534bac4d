// Package config loads the environment-style settings shared by every
// journalload scenario.
//
// Settings are read once, before the first iteration, into an immutable
// Config value. Scenarios receive that value explicitly; nothing in the
// module reads the environment after startup.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Defaults for the settings that have one.
const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultProdHostMarker = "onrender.com"
	DefaultTimeout        = 10 * time.Second
)

// Config holds the run configuration.
type Config struct {
	BaseURL        string        `envconfig:"BASE_URL" default:"http://localhost:8000"`
	AllowProd      Flag          `envconfig:"ALLOW_PROD" default:"false"`
	CleanOld       Flag          `envconfig:"CLEAN_OLD" default:"true"`
	ProdHostMarker string        `envconfig:"PROD_HOST_MARKER" default:"onrender.com"`
	Timeout        time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"INFO"`

	// EnvFile is the dotenv file Load read, or "" if none was found.
	EnvFile string `ignored:"true"`
}

// Flag is a boolean setting. Only the case-insensitive value "true" turns
// it on; anything else, including "1" and "t", leaves it off, so a typo
// never enables the production override.
type Flag bool

// Decode implements envconfig.Decoder.
func (f *Flag) Decode(value string) error {
	*f = Flag(strings.EqualFold(strings.TrimSpace(value), "true"))
	return nil
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		CleanOld:       true,
		ProdHostMarker: DefaultProdHostMarker,
		Timeout:        DefaultTimeout,
		LogLevel:       "INFO",
	}
}

// Load reads the configuration from the process environment.
//
// If envFile is non-empty it is loaded first with godotenv. A missing
// file is ignored and leaves Config.EnvFile empty; a file that exists but
// cannot be parsed is an error. Variables already present in the
// environment win over the file.
func Load(envFile string) (Config, error) {
	var loaded string
	if envFile != "" {
		switch err := godotenv.Load(envFile); {
		case err == nil:
			loaded = envFile
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, &ConfigError{
				Code:    ErrCodeEnvFile,
				Message: fmt.Sprintf("failed to load %s: %v", envFile, err),
			}
		}
	}

	cfg := Config{EnvFile: loaded}
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, &ConfigError{
			Code:    ErrCodeParse,
			Message: fmt.Sprintf("failed to process environment: %v", err),
		}
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.LogLevel = normalizeLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that can be checked without a network call.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ConfigError{
			Code:    ErrCodeInvalidBaseURL,
			Message: fmt.Sprintf("BASE_URL must be an absolute http(s) URL, got %q", c.BaseURL),
		}
	}
	if c.Timeout <= 0 {
		return &ConfigError{
			Code:    ErrCodeInvalidTimeout,
			Message: fmt.Sprintf("HTTP_TIMEOUT must be positive, got %s", c.Timeout),
		}
	}
	return nil
}

// GuardProduction refuses base URLs that point at the production host
// unless AllowProd is set. It must run before any request is issued.
func (c Config) GuardProduction() error {
	if c.AllowProd || c.ProdHostMarker == "" {
		return nil
	}
	if strings.Contains(c.BaseURL, c.ProdHostMarker) {
		return &ConfigError{
			Code: ErrCodeProdRefused,
			Message: fmt.Sprintf(
				"refusing to run against production (%s); set ALLOW_PROD=true if you really intend to run on prod",
				c.BaseURL),
		}
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level.
func (c Config) SlogLevel() slog.Level {
	switch normalizeLevel(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// normalizeLevel upper-cases the level and falls back to INFO for
// anything unrecognised. WARNING and CRITICAL are accepted as aliases.
func normalizeLevel(level string) string {
	l := strings.ToUpper(strings.TrimSpace(level))
	switch l {
	case "DEBUG", "INFO", "WARN", "ERROR":
		return l
	case "WARNING":
		return "WARN"
	case "CRITICAL":
		return "ERROR"
	default:
		return "INFO"
	}
}
