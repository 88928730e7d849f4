// Package config provides configuration for the Remo desktop shell.
//
// Sources, highest priority first: CLI flags, REMO_* environment variables,
// an optional TOML file named by REMO_CONFIG, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// DefaultDevURL is the live development server loaded in dev mode.
const DefaultDevURL = "http://localhost:3000"

// Config holds the shell configuration.
type Config struct {
	// Mode
	Dev    bool   `toml:"dev"`     // REMO_DEV (default: false)
	DevURL string `toml:"dev_url"` // REMO_DEV_URL (default: http://localhost:3000)

	// Packaged assets
	RootDir     string `toml:"root_dir"`     // REMO_ROOT_DIR (default: build)
	WatchAssets bool   `toml:"watch_assets"` // REMO_WATCH_ASSETS (default: false)

	// Window
	OpenBrowser bool          `toml:"open_browser"` // REMO_OPEN_BROWSER (default: true)
	LoadTimeout time.Duration `toml:"-"`            // REMO_LOAD_TIMEOUT (default: 15s)

	// Logging
	LogDir    string `toml:"log_dir"`    // REMO_LOG_DIR (optional, enables rotating file)
	LogFormat string `toml:"log_format"` // REMO_LOG_FORMAT (text|json, default: text)
	LogLevel  string `toml:"log_level"`  // REMO_LOG_LEVEL (default: info)
	AccessLog bool   `toml:"access_log"` // REMO_ACCESS_LOG (default: false)

	// File is the TOML file the config was layered on, if any.
	File string `toml:"-"`
}

// fileConfig mirrors Config for TOML decoding; durations are strings there.
type fileConfig struct {
	Config
	LoadTimeout string `toml:"load_timeout"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		DevURL:      DefaultDevURL,
		RootDir:     "build",
		OpenBrowser: true,
		LoadTimeout: 15 * time.Second,
		LogFormat:   "text",
		LogLevel:    "info",
	}
}

// Load reads the optional config file and environment variables on top of
// the defaults.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("REMO_CONFIG"); path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadTOML layers the TOML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadTOML(cfg *Config, path string) error {
	fc := fileConfig{Config: *cfg}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	*cfg = fc.Config
	if fc.LoadTimeout != "" {
		d, err := time.ParseDuration(fc.LoadTimeout)
		if err != nil {
			return fmt.Errorf("config file %s: load_timeout: %w", path, err)
		}
		cfg.LoadTimeout = d
	}
	cfg.File = path
	return nil
}

// ApplyEnv overrides fields from REMO_* environment variables.
func (c *Config) ApplyEnv() {
	c.Dev = envBool("REMO_DEV", c.Dev)
	c.DevURL = envStr("REMO_DEV_URL", c.DevURL)
	c.RootDir = envStr("REMO_ROOT_DIR", c.RootDir)
	c.WatchAssets = envBool("REMO_WATCH_ASSETS", c.WatchAssets)
	c.OpenBrowser = envBool("REMO_OPEN_BROWSER", c.OpenBrowser)
	c.LoadTimeout = envDuration("REMO_LOAD_TIMEOUT", c.LoadTimeout)
	c.LogDir = envStr("REMO_LOG_DIR", c.LogDir)
	c.LogFormat = envStr("REMO_LOG_FORMAT", c.LogFormat)
	c.LogLevel = envStr("REMO_LOG_LEVEL", c.LogLevel)
	c.AccessLog = envBool("REMO_ACCESS_LOG", c.AccessLog)
}

// BindFlags registers flags that override the loaded values when set.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&c.Dev, "dev", c.Dev, "load the live development server instead of packaged assets")
	fs.StringVar(&c.DevURL, "dev-url", c.DevURL, "development server URL")
	fs.StringVar(&c.RootDir, "root", c.RootDir, "directory holding the built application")
	fs.BoolVar(&c.WatchAssets, "watch", c.WatchAssets, "reload the window when assets change")
	fs.BoolVar(&c.OpenBrowser, "open-browser", c.OpenBrowser, "open the system browser once content is ready")
	fs.DurationVar(&c.LoadTimeout, "load-timeout", c.LoadTimeout, "how long to wait for content to load")
	fs.StringVar(&c.LogDir, "log-dir", c.LogDir, "also write rotating logs to this directory")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&c.AccessLog, "access-log", c.AccessLog, "log every static request")
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Dev {
		u, err := url.Parse(c.DevURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("dev URL %q must be an absolute http:// or https:// URL", c.DevURL))
		}
	} else if strings.TrimSpace(c.RootDir) == "" {
		errs = append(errs, errors.New("root directory must be set"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be text or json", c.LogFormat))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.LoadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("load timeout %s must be positive", c.LoadTimeout))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
