// Package config resolves applypatch settings from .env, an optional
// .applypatch.{yaml,toml,json} file, APPLYPATCH_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/asynkron/applypatch/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "APPLYPATCH"

// Color modes accepted by the color key.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config is the resolved configuration.
type Config struct {
	// Root is the project directory patches are applied to.
	Root string `mapstructure:"root"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `mapstructure:"log_level"`
	// Journal is the sqlite journal path. Empty disables the journal.
	Journal string `mapstructure:"journal"`
	// HTTPAddr is the listen address used by serve.
	HTTPAddr string `mapstructure:"http_addr"`
	// Color is auto, always or never.
	Color string `mapstructure:"color"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Root:     ".",
		LogLevel: "warn",
		HTTPAddr: "127.0.0.1:8080",
		Color:    ColorAuto,
	}
}

// Options controls where Load looks for settings.
type Options struct {
	// Dir is searched for .env and .applypatch.*; it defaults to the working directory.
	Dir string
	// ConfigFile, when set, replaces the .applypatch.* lookup.
	ConfigFile string
	// Command supplies flags that override file and environment values.
	Command *cobra.Command
}

// flagKeys maps configuration keys to the flag names bound to them.
var flagKeys = map[string]string{
	"root":      "root",
	"log_level": "log-level",
	"journal":   "journal",
	"http_addr": "addr",
	"color":     "color",
}

// Load resolves the configuration. A missing .env or config file is not an
// error; malformed ones are.
func Load(opts Options) (*Config, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		dir = wd
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	defaults := Default()
	v.SetDefault("root", defaults.Root)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("journal", defaults.Journal)
	v.SetDefault("http_addr", defaults.HTTPAddr)
	v.SetDefault("color", defaults.Color)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(".applypatch")
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if opts.Command != nil {
		for key, name := range flagKeys {
			if flag := opts.Command.Flags().Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(dir, cfg.Root)
	}
	if cfg.Journal != "" && !filepath.IsAbs(cfg.Journal) {
		cfg.Journal = filepath.Join(cfg.Root, cfg.Journal)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("invalid color mode %q (want auto, always or never)", c.Color)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http_addr must not be empty")
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logging.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}
