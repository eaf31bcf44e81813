// Package config resolves runner settings from defaults, an optional
// conform.toml in the test directory, a .env file and the environment.
//
// Command-line flags are applied on top by the CLI layer.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/roach88/conform/internal/build"
	"github.com/roach88/conform/internal/harness"
)

// FileName is the optional per-directory configuration file.
const FileName = "conform.toml"

// Defaults for directory layout, relative to the test directory.
const (
	DefaultCasesDir = "cases"
	DefaultLogsDir  = "logs"
)

// Config holds every setting a run needs. Paths are absolute after Load.
type Config struct {
	TestDir      string
	CasesDir     string
	LogsDir      string
	Harness      string
	BuildCommand []string
	Jobs         int
	Timeout      time.Duration

	// History is the run-history database. Empty disables recording.
	History string
}

// fileConfig mirrors conform.toml. Relative paths resolve against the
// test directory.
type fileConfig struct {
	Harness string   `toml:"harness"`
	Build   []string `toml:"build"`
	Cases   string   `toml:"cases"`
	Logs    string   `toml:"logs"`
	Jobs    *int     `toml:"jobs"`
	Timeout string   `toml:"timeout"`
	History string   `toml:"history"`
}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Options controls where Load looks for its layers.
type Options struct {
	// TestDir is the directory holding cases, logs and build outputs.
	TestDir string

	// EnvFile is read for variables missing from the real environment.
	// Empty disables it; a missing file is not an error.
	EnvFile string

	// Lookup defaults to os.LookupEnv.
	Lookup LookupFunc
}

// Default returns the built-in configuration for testDir.
func Default(testDir string) *Config {
	return &Config{
		TestDir:      testDir,
		CasesDir:     filepath.Join(testDir, DefaultCasesDir),
		LogsDir:      filepath.Join(testDir, DefaultLogsDir),
		Harness:      harness.DefaultPath,
		BuildCommand: append([]string(nil), build.DefaultCommand...),
		Jobs:         1,
	}
}

// Load resolves the configuration. Precedence, lowest first: defaults,
// conform.toml, .env, process environment.
func Load(opts Options) (*Config, error) {
	testDir := opts.TestDir
	if testDir == "" {
		testDir = "."
	}
	testDir, err := filepath.Abs(testDir)
	if err != nil {
		return nil, fmt.Errorf("resolve test directory: %w", err)
	}

	info, err := os.Stat(testDir)
	if err != nil {
		return nil, fmt.Errorf("test directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test directory %s is not a directory", testDir)
	}

	cfg := Default(testDir)

	if err := cfg.applyFile(filepath.Join(testDir, FileName)); err != nil {
		return nil, err
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	dotenv, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	if v, ok := lookup(harness.EnvVar); ok && v != "" {
		cfg.Harness = v
	} else if v := dotenv[harness.EnvVar]; v != "" {
		cfg.Harness = v
	}

	// Environment paths are relative to the process working directory.
	if cfg.Harness, err = filepath.Abs(cfg.Harness); err != nil {
		return nil, fmt.Errorf("resolve harness path: %w", err)
	}

	return cfg, cfg.Validate()
}

// applyFile merges conform.toml when present.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", FileName, err)
	}

	var fc fileConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.Harness != "" {
		c.Harness = c.resolve(fc.Harness)
	}
	if len(fc.Build) > 0 {
		c.BuildCommand = fc.Build
	}
	if fc.Cases != "" {
		c.CasesDir = c.resolve(fc.Cases)
	}
	if fc.Logs != "" {
		c.LogsDir = c.resolve(fc.Logs)
	}
	if fc.Jobs != nil {
		c.Jobs = *fc.Jobs
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("parse %s: timeout: %w", path, err)
		}
		c.Timeout = d
	}
	if fc.History != "" {
		c.History = c.resolve(fc.History)
	}
	return nil
}

// resolve anchors a relative path at the test directory.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.TestDir, p)
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	if len(c.BuildCommand) == 0 || c.BuildCommand[0] == "" {
		return errors.New("build command is empty")
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vars, nil
}
