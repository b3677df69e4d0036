// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/parley-dev/parley/internal/lock"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// Config is the top-level Parley configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Contexts ContextsConfig `mapstructure:"contexts"`
	Lock     LockConfig     `mapstructure:"lock"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StoreConfig selects and tunes the key-value backend.
type StoreConfig struct {
	Backend     string        `mapstructure:"backend"`
	URL         string        `mapstructure:"url"`
	DB          int           `mapstructure:"db"`
	MaxConns    int           `mapstructure:"max_conns"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
}

// SessionsConfig controls conversation log key layout and expiry.
type SessionsConfig struct {
	SessionPrefix  string        `mapstructure:"session_prefix"`
	MessagesPrefix string        `mapstructure:"messages_prefix"`
	TTL            time.Duration `mapstructure:"ttl"`
}

// ContextsConfig controls context record key layout and expiry.
type ContextsConfig struct {
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// LockConfig tunes distributed lock acquisition.
type LockConfig struct {
	Prefix      string        `mapstructure:"prefix"`
	HoldTimeout time.Duration `mapstructure:"hold_timeout"`
	Retries     int           `mapstructure:"retries"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix PARLEY_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.url", "redis://localhost:6379/0")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.dial_timeout", "5s")
	v.SetDefault("store.op_timeout", "3s")
	v.SetDefault("sessions.session_prefix", "agent_session")
	v.SetDefault("sessions.messages_prefix", "agent_messages")
	v.SetDefault("sessions.ttl", "0s")
	v.SetDefault("contexts.prefix", "agent_context")
	v.SetDefault("contexts.ttl", "0s")
	v.SetDefault("lock.prefix", "session_lock")
	v.SetDefault("lock.hold_timeout", "30s")
	v.SetDefault("lock.retries", lock.DefaultRetries)
	v.SetDefault("lock.backoff", "500ms")
	v.SetDefault("server.listen", "127.0.0.1:18990")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Environment
	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, parleyerr.Errorf(parleyerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateSessions()...)
	errs = append(errs, c.validateLock()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateStore() []error {
	var errs []error

	validBackends := map[string]bool{"redis": true, "sqlite": true, "memory": true}
	if !validBackends[c.Store.Backend] {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: store.backend must be one of [redis, sqlite, memory], got %q",
			c.Store.Backend,
		))
	}

	switch c.Store.Backend {
	case "redis":
		if c.Store.URL == "" {
			errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
				"config: store.url must not be empty for the redis backend"))
		} else if !strings.HasPrefix(c.Store.URL, "redis://") && !strings.HasPrefix(c.Store.URL, "rediss://") {
			errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
				"config: store.url must start with redis:// or rediss://, got %q",
				c.Store.URL,
			))
		}
	case "sqlite":
		if c.Store.URL == "" {
			errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
				"config: store.url must be a database path for the sqlite backend"))
		}
	}

	if c.Store.MaxConns <= 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: store.max_conns must be greater than 0, got %d",
			c.Store.MaxConns,
		))
	}

	if c.Store.DialTimeout <= 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: store.dial_timeout must be greater than 0, got %s",
			c.Store.DialTimeout,
		))
	}

	if c.Store.OpTimeout <= 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: store.op_timeout must be greater than 0, got %s",
			c.Store.OpTimeout,
		))
	}

	return errs
}

func (c *Config) validateSessions() []error {
	var errs []error

	if c.Sessions.SessionPrefix == "" {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: sessions.session_prefix must not be empty"))
	}
	if c.Sessions.MessagesPrefix == "" {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: sessions.messages_prefix must not be empty"))
	}
	if c.Sessions.SessionPrefix != "" && c.Sessions.SessionPrefix == c.Sessions.MessagesPrefix {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: sessions.session_prefix and sessions.messages_prefix must differ, both are %q",
			c.Sessions.SessionPrefix,
		))
	}
	if c.Sessions.TTL < 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: sessions.ttl must not be negative, got %s",
			c.Sessions.TTL,
		))
	}
	if c.Contexts.Prefix == "" {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: contexts.prefix must not be empty"))
	}
	if c.Contexts.TTL < 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: contexts.ttl must not be negative, got %s",
			c.Contexts.TTL,
		))
	}

	return errs
}

func (c *Config) validateLock() []error {
	var errs []error

	if c.Lock.Prefix == "" {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: lock.prefix must not be empty"))
	}
	if c.Lock.HoldTimeout <= 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: lock.hold_timeout must be greater than 0, got %s",
			c.Lock.HoldTimeout,
		))
	}
	if c.Lock.Retries < 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: lock.retries must not be negative, got %d",
			c.Lock.Retries,
		))
	}
	if c.Lock.Backoff <= 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: lock.backoff must be greater than 0, got %s",
			c.Lock.Backoff,
		))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		host, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else {
			_ = host // host can be empty (e.g., ":8080"), which is valid
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q",
			c.Logging.Format,
		))
	}

	return errs
}
