// Package config loads remindav settings from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables, applied over the file.
const (
	EnvURL      = "REMINDAV_URL"
	EnvUsername = "REMINDAV_USERNAME"
	EnvPassword = "REMINDAV_PASSWORD"
	EnvTimeout  = "REMINDAV_TIMEOUT"
	EnvLogLevel = "REMINDAV_LOG_LEVEL"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	URL      string   `toml:"url"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	Timeout  Duration `toml:"timeout"`
	LogLevel string   `toml:"log_level"`
}

// Duration reads Go duration strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Timeout:  Duration{30 * time.Second},
		LogLevel: "info",
	}
}

// DefaultPath is remindav/config.toml under the user configuration
// directory, $XDG_CONFIG_HOME or ~/.config on Linux.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "remindav", "config.toml"), nil
}

// Load reads path over the defaults, then the environment through getenv.
// An empty path means DefaultPath, which may be absent; a named path must
// exist.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("config path: %w", err)
		}
		path = p
	}
	md, err := toml.DecodeFile(path, cfg)
	switch {
	case err == nil:
		if keys := md.Undecoded(); len(keys) > 0 {
			return nil, fmt.Errorf("%w: %s: unknown keys %v", ErrInvalid, path, keys)
		}
	case !explicit && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.URL, EnvURL)
	set(&c.Username, EnvUsername)
	set(&c.Password, EnvPassword)
	set(&c.LogLevel, EnvLogLevel)
	if v := getenv(EnvTimeout); v != "" {
		if err := c.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvTimeout, err)
		}
	}
	return nil
}

// Level parses LogLevel as a slog level name.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}

// Validate checks what is needed to reach a server.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required (set %s)", ErrInvalid, EnvURL)
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: url %q must be absolute", ErrInvalid, c.URL)
	}
	if c.Username == "" {
		return fmt.Errorf("%w: username is required (set %s)", ErrInvalid, EnvUsername)
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalid)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}
