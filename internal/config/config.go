// Package config loads the inboxauth settings.
//
// Settings are layered: built-in defaults, then the optional TOML file,
// then a .env file in the working directory, then INBOXAUTH_* environment
// variables. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	appName = "inboxauth"

	// DefaultCredentialsFile is the OAuth client identity file name.
	DefaultCredentialsFile = "credentials.json"

	// DefaultTokenFile is the stored credential file name.
	DefaultTokenFile = "token.json"

	envPrefix = "INBOXAUTH_"
)

// Settings holds all inboxauth configuration.
type Settings struct {
	ConfigDir       string `toml:"config_dir"`
	CredentialsFile string `toml:"credentials_file"`
	TokenFile       string `toml:"token_file"`

	CallbackPort    int           `toml:"callback_port"`
	CallbackPath    string        `toml:"callback_path"`
	CallbackTimeout time.Duration `toml:"callback_timeout"`
	HTTPTimeout     time.Duration `toml:"http_timeout"`
	OpenBrowser     bool          `toml:"open_browser"`

	// Scopes overrides the default Gmail and Calendar read-only scopes.
	Scopes []string `toml:"scopes"`

	KeepaliveInterval time.Duration `toml:"keepalive_interval"`
	KeepaliveLeeway   time.Duration `toml:"keepalive_leeway"`
	MetricsAddr       string        `toml:"metrics_addr"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		ConfigDir:         DefaultConfigDir(),
		CredentialsFile:   DefaultCredentialsFile,
		TokenFile:         DefaultTokenFile,
		CallbackPort:      8080,
		CallbackPath:      "/",
		CallbackTimeout:   120 * time.Second,
		HTTPTimeout:       30 * time.Second,
		OpenBrowser:       true,
		KeepaliveInterval: 5 * time.Minute,
		KeepaliveLeeway:   10 * time.Minute,
		MetricsAddr:       ":9090",
	}
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/inboxauth, falling back to
// ~/.config/inboxauth.
func DefaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

// DefaultConfigPath returns the default path of the settings file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.toml")
}

// Load reads .env from the working directory if present, then the
// settings file at path. An empty path means DefaultConfigPath.
func Load(path string) (Settings, error) {
	_ = godotenv.Load()
	if path == "" {
		path = DefaultConfigPath()
	}
	return LoadFrom(path)
}

// LoadFrom reads settings from the given TOML file path. A missing file
// yields the defaults. Environment variables always take precedence over
// file values.
func LoadFrom(path string) (Settings, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Settings{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Settings) error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(envPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("CONFIG_DIR", &cfg.ConfigDir)
	str("CREDENTIALS_FILE", &cfg.CredentialsFile)
	str("TOKEN_FILE", &cfg.TokenFile)
	num("CALLBACK_PORT", &cfg.CallbackPort)
	str("CALLBACK_PATH", &cfg.CallbackPath)
	dur("CALLBACK_TIMEOUT", &cfg.CallbackTimeout)
	dur("HTTP_TIMEOUT", &cfg.HTTPTimeout)
	flag("OPEN_BROWSER", &cfg.OpenBrowser)
	dur("KEEPALIVE_INTERVAL", &cfg.KeepaliveInterval)
	dur("KEEPALIVE_LEEWAY", &cfg.KeepaliveLeeway)
	str("METRICS_ADDR", &cfg.MetricsAddr)

	if v := os.Getenv(envPrefix + "SCOPES"); v != "" {
		cfg.Scopes = splitScopes(v)
	}

	return errors.Join(errs...)
}

// splitScopes accepts a comma or whitespace separated scope list.
func splitScopes(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// CredentialsPath returns the OAuth client identity file location.
// Relative file names are resolved against ConfigDir.
func (s Settings) CredentialsPath() string {
	return s.resolve(s.CredentialsFile)
}

// TokenPath returns the stored credential file location.
func (s Settings) TokenPath() string {
	return s.resolve(s.TokenFile)
}

func (s Settings) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.ConfigDir, name)
}

// Validate checks the settings for values the flow cannot work with.
func (s Settings) Validate() error {
	var errs []error
	if s.ConfigDir == "" {
		errs = append(errs, errors.New("config_dir must not be empty"))
	}
	if s.CredentialsFile == "" {
		errs = append(errs, errors.New("credentials_file must not be empty"))
	}
	if s.TokenFile == "" {
		errs = append(errs, errors.New("token_file must not be empty"))
	}
	if s.CallbackPort < 0 || s.CallbackPort > 65535 {
		errs = append(errs, fmt.Errorf("callback_port must be between 0 and 65535, got %d", s.CallbackPort))
	}
	if !strings.HasPrefix(s.CallbackPath, "/") {
		errs = append(errs, fmt.Errorf("callback_path must start with /, got %q", s.CallbackPath))
	}
	if s.CallbackTimeout <= 0 {
		errs = append(errs, fmt.Errorf("callback_timeout must be positive, got %s", s.CallbackTimeout))
	}
	if s.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http_timeout must be positive, got %s", s.HTTPTimeout))
	}
	if s.KeepaliveInterval <= 0 {
		errs = append(errs, fmt.Errorf("keepalive_interval must be positive, got %s", s.KeepaliveInterval))
	}
	if s.KeepaliveLeeway < 0 {
		errs = append(errs, fmt.Errorf("keepalive_leeway must not be negative, got %s", s.KeepaliveLeeway))
	}
	return errors.Join(errs...)
}
