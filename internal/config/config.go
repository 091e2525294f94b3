// Package config loads daemon settings from ACCESSMON_* environment variables.
package config

import (
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/access_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/access_mon/internal/infra"
	"github.com/eliteGoblin/focusd/access_mon/internal/usecase"
)

// Prefix is the environment variable prefix, e.g. ACCESSMON_DATA_DIR.
const Prefix = "ACCESSMON"

// Config holds the configuration for the daemon and the CLI.
type Config struct {
	// Storage; empty means derived from the exec mode
	DataDir string `envconfig:"DATA_DIR"`

	// HTTP transport, loopback only by default
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8741"`

	// Regulator timing
	CheckInterval time.Duration `envconfig:"CHECK_INTERVAL" default:"1m"`
	RetryInterval time.Duration `envconfig:"RETRY_INTERVAL" default:"30s"`

	// Upper bound for chpasswd, iptables, loginctl and systemctl
	CommandTimeout time.Duration `envconfig:"COMMAND_TIMEOUT" default:"30s"`

	// Logging; empty LogPath means derived from the exec mode
	LogPath  string `envconfig:"LOG_PATH"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	UnlockAttemptsPerMinute int `envconfig:"UNLOCK_ATTEMPTS_PER_MINUTE" default:"5"`
	PasswordLength          int `envconfig:"PASSWORD_LENGTH" default:"24"`
}

// New creates a Config from the environment, filling paths from mode.
func New(mode *infra.ExecModeConfig) (*Config, error) {
	var cfg Config

	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process environment variables")
	}

	if err := cfg.ResolveDefaults(mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveDefaults derives empty paths from mode and validates the rest.
func (c *Config) ResolveDefaults(mode *infra.ExecModeConfig) error {
	if c.DataDir == "" {
		c.DataDir = mode.DataDir
	}
	if c.LogPath == "" {
		c.LogPath = mode.LogPath
	}
	if !filepath.IsAbs(c.DataDir) {
		return errors.Errorf("DATA_DIR must be absolute: %q", c.DataDir)
	}

	if c.CheckInterval <= 0 || c.RetryInterval <= 0 || c.CommandTimeout <= 0 {
		return errors.New("CHECK_INTERVAL, RETRY_INTERVAL and COMMAND_TIMEOUT must be positive")
	}
	if c.UnlockAttemptsPerMinute < 1 {
		return errors.Errorf("UNLOCK_ATTEMPTS_PER_MINUTE must be at least 1, got %d", c.UnlockAttemptsPerMinute)
	}
	// Shorter passwords are guessable within one lock period.
	if c.PasswordLength < 12 {
		return errors.Errorf("PASSWORD_LENGTH must be at least 12, got %d", c.PasswordLength)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return level, errors.Wrapf(err, "invalid LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

// RegulatorConfig returns the regulator timing derived from the config.
func (c *Config) RegulatorConfig() daemon.RegulatorConfig {
	rc := daemon.DefaultRegulatorConfig()
	rc.CheckInterval = c.CheckInterval
	rc.RetryInterval = c.RetryInterval
	return rc
}

// ServiceConfig returns the service limits derived from the config.
func (c *Config) ServiceConfig() usecase.ServiceConfig {
	sc := usecase.DefaultServiceConfig()
	sc.UnlockAttemptsPerMinute = c.UnlockAttemptsPerMinute
	return sc
}
