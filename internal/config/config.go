// Package config loads server settings from flags, PRENOS_* environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"

	"github.com/erazemk/prenos/internal/authz"
)

// Prefix is prepended to every environment variable name.
const Prefix = "PRENOS"

// ErrHelpWanted is returned by Load after usage has been printed.
var ErrHelpWanted = conf.ErrHelpWanted

// Config holds all server settings. Nested fields map to flags such as
// --db-path and variables such as PRENOS_DB_PATH.
type Config struct {
	conf.Version
	DB struct {
		Path string `conf:"default:prenos.sqlite3,short:d,help:SQLite database path"`
	}
	Web struct {
		Address         string        `conf:"default::8080,short:a,help:listen address"`
		ReadTimeout     time.Duration `conf:"default:30s"`
		WriteTimeout    time.Duration `conf:"default:60s"`
		IdleTimeout     time.Duration `conf:"default:120s"`
		ShutdownTimeout time.Duration `conf:"default:5s"`
	}
	Auth struct {
		AdminUsername string        `conf:"default:Admin,short:u,help:SUPERADMIN username created on first run"`
		TokenTTL      time.Duration `conf:"default:168h"`
	}
	Log struct {
		Level string `conf:"default:info,help:debug|info|warn|error"`
		File  string `conf:"short:l,help:also append logs to this file"`
	}
	Transfers struct {
		ApprovalPolicy string `conf:"default:destination,help:destination|source|either"`
	}
}

// Load reads .env (if present), then flags and environment. When help is
// requested the usage text is printed and ErrHelpWanted returned.
func Load(build string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Version: conf.Version{
			Build: build,
			Desc:  "prenos: item transfer workflow service",
		},
	}

	help, err := conf.Parse(Prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil, ErrHelpWanted
		}
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values conf cannot express as tags.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.DB.Path) == "" {
		errs = append(errs, "db path must not be empty")
	}
	if strings.TrimSpace(c.Auth.AdminUsername) == "" {
		errs = append(errs, "admin username must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, "token ttl must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}
	switch authz.PolicyName(strings.ToLower(strings.TrimSpace(c.Transfers.ApprovalPolicy))) {
	case authz.PolicyDestination, authz.PolicySource, authz.PolicyEither:
	default:
		errs = append(errs, fmt.Sprintf("unknown approval policy %q", c.Transfers.ApprovalPolicy))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
}

// String renders the config for logging.
func (c *Config) String() string {
	out, err := conf.String(c)
	if err != nil {
		return err.Error()
	}
	return out
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
