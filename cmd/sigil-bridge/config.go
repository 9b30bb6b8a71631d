// ABOUTME: Configuration loading for the sigil-bridge tool console
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig  `toml:"server"`
	Timeouts TimeoutConfig `toml:"timeouts"`
	Logging  LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Endpoint   string `toml:"endpoint"`
	Credential string `toml:"credential"`
}

type TimeoutConfig struct {
	Connect time.Duration `toml:"-"`
	List    time.Duration `toml:"-"`
	Call    time.Duration `toml:"-"`

	// Raw string values for TOML unmarshaling
	ConnectRaw string `toml:"connect"`
	ListRaw    string `toml:"list"`
	CallRaw    string `toml:"call"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.parseTimeouts(); err != nil {
		return nil, fmt.Errorf("parsing timeouts: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Server.Endpoint == "" {
		return fmt.Errorf("server.endpoint is required")
	}
	u, err := url.Parse(c.Server.Endpoint)
	if err != nil {
		return fmt.Errorf("server.endpoint is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.endpoint must use http or https scheme")
	}
	return nil
}

// parseTimeouts converts the raw duration strings into time.Duration values.
// Unset timeouts stay zero; the bridge client applies its own defaults.
func (c *Config) parseTimeouts() error {
	var err error

	if c.Timeouts.ConnectRaw != "" {
		c.Timeouts.Connect, err = time.ParseDuration(c.Timeouts.ConnectRaw)
		if err != nil {
			return fmt.Errorf("parsing timeouts.connect %q: %w", c.Timeouts.ConnectRaw, err)
		}
	}

	if c.Timeouts.ListRaw != "" {
		c.Timeouts.List, err = time.ParseDuration(c.Timeouts.ListRaw)
		if err != nil {
			return fmt.Errorf("parsing timeouts.list %q: %w", c.Timeouts.ListRaw, err)
		}
	}

	if c.Timeouts.CallRaw != "" {
		c.Timeouts.Call, err = time.ParseDuration(c.Timeouts.CallRaw)
		if err != nil {
			return fmt.Errorf("parsing timeouts.call %q: %w", c.Timeouts.CallRaw, err)
		}
	}

	return nil
}
