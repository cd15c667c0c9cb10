// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds everything needed to open a tuple store and build
// repositories over it.
type Config struct {
	// Store locates the database.
	Store StoreConfig `yaml:"store"`

	// Spaces are defined when the store opens. Repositories define the
	// space of their entity themselves, so this is only needed for spaces
	// used by procedures alone.
	Spaces []SpaceConfig `yaml:"spaces"`

	// Scripts are paths of Lua files loaded as stored procedures.
	// Relative paths in a config file resolve against the file's directory.
	Scripts []string `yaml:"scripts"`

	// PoolSize bounds the goroutines the database uses for multi-space work
	// such as Truncate.
	// Default: runtime.NumCPU() / 2, at least 1
	PoolSize int `yaml:"pool_size"`

	// LogLevel is one of debug, info, warn, error. Default: info
	LogLevel string `yaml:"log_level"`
}

// StoreConfig locates the BadgerDB database.
type StoreConfig struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string `yaml:"path"`

	// InMemory keeps everything in memory; nothing survives Close.
	InMemory bool `yaml:"in_memory"`
}

// SpaceConfig declares one space.
type SpaceConfig struct {
	Name string `yaml:"name"`

	// KeyFields are the primary key positions. Default: [0]
	KeyFields []int `yaml:"key_fields"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithPath sets the database directory.
func WithPath(path string) ConfigOption {
	return func(c *Config) {
		c.Store.Path = path
	}
}

// WithInMemory selects an in-memory database.
func WithInMemory() ConfigOption {
	return func(c *Config) {
		c.Store.InMemory = true
	}
}

// WithSpace adds a space definition.
func WithSpace(name string, keyFields ...int) ConfigOption {
	return func(c *Config) {
		c.Spaces = append(c.Spaces, SpaceConfig{Name: name, KeyFields: keyFields})
	}
}

// WithScript adds a Lua script path.
func WithScript(path string) ConfigOption {
	return func(c *Config) {
		c.Scripts = append(c.Scripts, path)
	}
}

// WithPoolSize sets the database worker pool size.
func WithPoolSize(size int) ConfigOption {
	return func(c *Config) {
		c.PoolSize = size
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) ConfigOption {
	return func(c *Config) {
		c.LogLevel = level
	}
}

func defaultPoolSize() int {
	return max(runtime.NumCPU()/2, 1)
}

// DefaultConfig returns a Config for a database in ./tuplerepo.db.
func DefaultConfig() *Config {
	return &Config{
		Store:    StoreConfig{Path: "./tuplerepo.db"},
		PoolSize: defaultPoolSize(),
		LogLevel: "info",
	}
}

// NewConfig creates a Config with the default values and applies opts.
//
// Example:
//
//	cfg := NewConfig(
//	    WithInMemory(),
//	    WithScript("procedures/books.lua"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Load reads a YAML config file. Fields the file omits keep their default
// values and relative script paths resolve against the file's directory.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i, s := range cfg.Scripts {
		if !filepath.IsAbs(s) {
			cfg.Scripts[i] = filepath.Join(dir, s)
		}
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config over the defaults and validates it.
// Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize puts the configuration in canonical form: trimmed names, a
// lower-case log level, default key fields and a positive pool size.
func (c *Config) Normalize() {
	c.Store.Path = strings.TrimSpace(c.Store.Path)
	if c.Store.Path != "" {
		c.Store.Path = filepath.Clean(c.Store.Path)
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PoolSize < 1 {
		c.PoolSize = defaultPoolSize()
	}
	for i := range c.Spaces {
		c.Spaces[i].Name = strings.TrimSpace(c.Spaces[i].Name)
		if len(c.Spaces[i].KeyFields) == 0 {
			c.Spaces[i].KeyFields = []int{0}
		}
	}
	var scripts []string
	for _, s := range c.Scripts {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(scripts, s) {
			scripts = append(scripts, s)
		}
	}
	c.Scripts = scripts
}

// Validate normalizes the configuration and reports every problem found.
func (c *Config) Validate() error {
	c.Normalize()

	var errs []error
	if !c.Store.InMemory && c.Store.Path == "" {
		errs = append(errs, errors.New("config: store.path is required unless store.in_memory is set"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(c.Spaces))
	for i, sp := range c.Spaces {
		switch {
		case sp.Name == "":
			errs = append(errs, fmt.Errorf("config: spaces[%d].name is required", i))
		case strings.ContainsRune(sp.Name, 0):
			errs = append(errs, fmt.Errorf("config: spaces[%d].name contains a NUL byte", i))
		case seen[sp.Name]:
			errs = append(errs, fmt.Errorf("config: space %q is defined twice", sp.Name))
		}
		seen[sp.Name] = true
		for _, f := range sp.KeyFields {
			if f < 0 {
				errs = append(errs, fmt.Errorf("config: space %q has negative key field %d", sp.Name, f))
			}
		}
		if len(slices.Compact(slices.Sorted(slices.Values(sp.KeyFields)))) != len(sp.KeyFields) {
			errs = append(errs, fmt.Errorf("config: space %q repeats a key field", sp.Name))
		}
	}
	return errors.Join(errs...)
}

// ReadScripts returns the contents of every configured script.
func (c *Config) ReadScripts() ([]string, error) {
	out := make([]string, 0, len(c.Scripts))
	for _, path := range c.Scripts {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: script: %w", err)
		}
		out = append(out, string(b))
	}
	return out, nil
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: log_level %q is invalid; valid values: debug, info, warn, error", name)
}
