package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/devlane/devlane/internal/logger"
)

// DefaultEngineType is the primary engine used when neither the launcher
// nor the generic engine setting names one.
const DefaultEngineType = "vite"

// DefaultHost is the explicit IPv4 bind address for spawned workloads.
// Binding "localhost" is ambiguous on dual-stack hosts.
const DefaultHost = "127.0.0.1"

// ConfigLoadError wraps a failure to read or decode the config source.
// It is terminal for the requested operation.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("load config %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// Config is the resolved configuration for one control plane or one
// embedded launcher session.
type Config struct {
	Server    *ServerConfig        `mapstructure:"server"`
	Log       LogConfig            `mapstructure:"log"`
	Capture   logger.CaptureConfig `mapstructure:"capture"`
	Workspace WorkspaceConfig      `mapstructure:"workspace"`
	Launcher  LauncherConfig       `mapstructure:"launcher"`
	Engine    EngineConfig         `mapstructure:"engine"`
	Engines   map[string]Commands  `mapstructure:"engines"`
	Framework string               `mapstructure:"framework"` // pin; skips detection when set
	Plugins   []string             `mapstructure:"plugins"`
	Watch     WatchConfig          `mapstructure:"watch"`
	History   HistoryConfig        `mapstructure:"history"`
	Metrics   MetricsConfig        `mapstructure:"metrics"`

	// raw holds the decoded settings tree so inline overrides can be
	// deep-merged before re-decoding.
	raw map[string]any
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Color bool   `mapstructure:"color"`
}

type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
}

// LauncherConfig carries the launcher-scoped engine override. It wins
// over the generic engine setting.
type LauncherConfig struct {
	Engine string `mapstructure:"engine"`
}

// EngineConfig is the generic engine selection.
type EngineConfig struct {
	Type string `mapstructure:"type"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
	Build    bool          `mapstructure:"build"` // trigger a build on change
}

type HistoryConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Load reads a TOML config file. A missing path yields defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return fromSettings(map[string]any{})
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	return fromSettings(v.AllSettings())
}

// MergeInline applies caller-supplied overrides on top of the loaded
// settings: later keys win, nested tables merge recursively, arrays are
// replaced wholesale. The receiver is re-decoded from the merged tree.
func (c *Config) MergeInline(overrides map[string]any) (*Config, error) {
	if len(overrides) == 0 {
		return c, nil
	}
	merged := DeepMerge(c.raw, overrides)
	return fromSettings(merged)
}

// ResolveEngineType applies the documented precedence:
// launcher.engine > engine.type > default.
func (c *Config) ResolveEngineType() string {
	if c.Launcher.Engine != "" {
		return c.Launcher.Engine
	}
	if c.Engine.Type != "" {
		return c.Engine.Type
	}
	return DefaultEngineType
}

func fromSettings(settings map[string]any) (*Config, error) {
	v := viper.New()
	if err := v.MergeConfigMap(settings); err != nil {
		return nil, &ConfigLoadError{Err: err}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, &ConfigLoadError{Err: err}
	}
	c.raw = settings
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 300 * time.Millisecond
	}
	return &c, nil
}
