package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nissy-dev/tunstack/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// The fixture itself must be valid YAML before we feed it to the
	// loader.
	var raw map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(content), &raw))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tun0", cfg.Stack.Interface)
	assert.Equal(t, 10, cfg.Stack.QueueCapacity)
	assert.Equal(t, 2048, cfg.Stack.ReadBufferSize)
	assert.False(t, cfg.Stack.FullTuple)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
stack:
  interface: tun1
  queue_capacity: 32
  full_tuple: true
metrics:
  enabled: true
  addr: ":9100"
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tun1", cfg.Stack.Interface)
	assert.Equal(t, 32, cfg.Stack.QueueCapacity)
	assert.True(t, cfg.Stack.FullTuple)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 2048, cfg.Stack.ReadBufferSize)
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty interface", "stack:\n  interface: \"\"\n"},
		{"interface too long", "stack:\n  interface: aaaaaaaaaaaaaaaaaaaa\n"},
		{"zero queue capacity", "stack:\n  queue_capacity: 0\n"},
		{"tiny read buffer", "stack:\n  read_buffer_size: 100\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
