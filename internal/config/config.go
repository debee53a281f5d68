// Package config loads k4call's settings from an optional TOML file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
)

// FileName is the file Find looks for.
const FileName = "k4call.toml"

type Config struct {
	SocketFD   int    `toml:"socketFD"`
	ContextEnv string `toml:"contextEnv"`
	LogLevel   string `toml:"logLevel"`
}

func Default() *Config {
	return &Config{
		SocketFD:   3,
		ContextEnv: "K4_CONTEXT",
		LogLevel:   "warn",
	}
}

// Load reads the file at path over the defaults. Keys missing from the file keep their default.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("loading %s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// Find loads the nearest k4call.toml at or above dir, or returns the defaults if there is none.
func Find(dir string) (*Config, string, error) {
	path, err := FindUp(FileName, dir)
	if err != nil {
		return nil, "", fmt.Errorf("finding %s: %w", FileName, err)
	}
	if path == "" {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// FromWorkingDir is Find starting at the current working directory.
func FromWorkingDir() (*Config, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("getting working dir: %w", err)
	}
	return Find(wd)
}

func (c *Config) Level() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.LogLevel)
}

func (c *Config) validate() error {
	if c.SocketFD < 0 {
		return fmt.Errorf("socketFD must not be negative, got %d", c.SocketFD)
	}
	if c.ContextEnv == "" {
		return fmt.Errorf("contextEnv required")
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("logLevel: %w", err)
	}
	return nil
}
