package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "./tuplerepo.db", cfg.Store.Path)
	assert.False(t, cfg.Store.InMemory)
	assert.GreaterOrEqual(t, cfg.PoolSize, 1)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(
		WithInMemory(),
		WithPath(""),
		WithSpace("book"),
		WithSpace("pair", 0, 1),
		WithScript("a.lua"),
		WithScript("a.lua"),
		WithPoolSize(0),
		WithLogLevel(" DEBUG "),
	)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, []SpaceConfig{
		{Name: "book", KeyFields: []int{0}},
		{Name: "pair", KeyFields: []int{0, 1}},
	}, cfg.Spaces)
	assert.Equal(t, []string{"a.lua"}, cfg.Scripts)
	assert.GreaterOrEqual(t, cfg.PoolSize, 1)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []ConfigOption
		wantErr string
	}{
		{"path required", []ConfigOption{WithPath("  ")}, "store.path is required"},
		{"bad level", []ConfigOption{WithLogLevel("loud")}, `log_level "loud" is invalid`},
		{"empty space name", []ConfigOption{WithSpace(" ")}, "spaces[0].name is required"},
		{"duplicate space", []ConfigOption{WithSpace("a"), WithSpace("a")}, `space "a" is defined twice`},
		{"negative key", []ConfigOption{WithSpace("a", -1)}, "negative key field"},
		{"repeated key", []ConfigOption{WithSpace("a", 1, 1)}, "repeats a key field"},
		{"nul in name", []ConfigOption{WithSpace("a\x00b")}, "NUL byte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfig(tt.opts...).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("all problems reported", func(t *testing.T) {
		err := NewConfig(WithPath(""), WithLogLevel("loud")).Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store.path")
		assert.Contains(t, err.Error(), "log_level")
	})
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
store:
  in_memory: true
spaces:
  - name: book
  - name: pair
    key_fields: [0, 1]
scripts:
  - procs.lua
pool_size: 3
log_level: warn
`))
	require.NoError(t, err)
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, []int{0}, cfg.Spaces[0].KeyFields)
	assert.Equal(t, []int{0, 1}, cfg.Spaces[1].KeyFields)
	assert.Equal(t, []string{"procs.lua"}, cfg.Scripts)
	assert.Equal(t, 3, cfg.PoolSize)
	assert.Equal(t, slog.LevelWarn, cfg.Level())

	// Omitted fields keep their defaults.
	cfg, err = LoadFromReader(strings.NewReader("log_level: error\n"))
	require.NoError(t, err)
	assert.Equal(t, "tuplerepo.db", cfg.Store.Path)

	cfg, err = LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)

	_, err = LoadFromReader(strings.NewReader("unknown: 1\n"))
	assert.ErrorContains(t, err, "decode yaml")

	_, err = LoadFromReader(strings.NewReader("log_level: loud\n"))
	assert.ErrorContains(t, err, "log_level")
}

func TestLoad_ResolvesScripts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "procs.lua"), []byte("function one() return 1 end"), 0o644))
	path := filepath.Join(dir, "tuplerepo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  in_memory: true\nscripts: [procs.lua]\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "procs.lua")}, cfg.Scripts)

	scripts, err := cfg.ReadScripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"function one() return 1 end"}, scripts)

	cfg.Scripts = append(cfg.Scripts, filepath.Join(dir, "missing.lua"))
	_, err = cfg.ReadScripts()
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "": slog.LevelInfo,
		"warn": slog.LevelWarn, "warning": slog.LevelWarn, "error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
