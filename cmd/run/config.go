package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// config is the run configuration. A TOML file supplies the base values
// and command-line flags override them.
type config struct {
	Guest     string `toml:"guest"`
	Demo      bool   `toml:"demo"`
	Namespace string `toml:"namespace"`
	Reserved  uint32 `toml:"reserved"`
	LogLevel  string `toml:"log-level"`
	Peek      string `toml:"peek"`

	Engine struct {
		MemoryLimitPages uint32 `toml:"memory-limit-pages"`
	} `toml:"engine"`

	Loader struct {
		MaxSize int64 `toml:"max-size"`
	} `toml:"loader"`

	Frames struct {
		Count    int    `toml:"count"`
		Interval string `toml:"interval"`
	} `toml:"frames"`
}

const (
	defaultFrames   = 60
	defaultInterval = 16 * time.Millisecond
)

func defaultConfig() *config {
	c := &config{LogLevel: "warn"}
	c.Frames.Count = defaultFrames
	return c
}

// loadConfig reads path over the defaults. An empty path returns the
// defaults.
func loadConfig(path string) (*config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return c, nil
}

func (c *config) interval() (time.Duration, error) {
	if c.Frames.Interval == "" {
		return defaultInterval, nil
	}
	d, err := time.ParseDuration(c.Frames.Interval)
	if err != nil {
		return 0, fmt.Errorf("frames.interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("frames.interval must be positive, got %s", d)
	}
	return d, nil
}

// logger builds a console logger at the configured level.
func (c *config) logger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log-level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	return zc.Build()
}
