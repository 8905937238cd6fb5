package qrtile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qrtile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 500, c.ChunkSize)
	assert.Equal(t, "high", c.RecoveryLevel)
	assert.Equal(t, "none", c.Compression)
	assert.False(t, c.DisableLabels)
	assert.Equal(t, 4<<20, c.MaxTextBytes)
	assert.Equal(t, 4096, c.MaxChunks)
	assert.Equal(t, ":8000", c.Listen)
	assert.Empty(t, c.LedgerPath)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "chunkSize: 800\ncompression: zstd\nlisten: 127.0.0.1:9000\n")

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 800, c.ChunkSize)
	assert.Equal(t, "zstd", c.Compression)
	assert.Equal(t, "127.0.0.1:9000", c.Listen)
	assert.Equal(t, "high", c.RecoveryLevel)
	assert.Equal(t, DefaultMaxChunks, c.MaxChunks)
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "chunksize: 800\n"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_ChunkSizeMustFitSymbol(t *testing.T) {
	c := DefaultConfig()
	c.ChunkSize = 1700
	assert.ErrorIs(t, c.Validate(), ErrInvalidInput, "1700 bytes plus header exceed high recovery")

	c.RecoveryLevel = "low"
	assert.NoError(t, c.Validate())

	c.RecoveryLevel = "highest"
	assert.ErrorIs(t, c.Validate(), ErrInvalidInput)

	c.RecoveryLevel = "extreme"
	assert.ErrorIs(t, c.Validate(), ErrInvalidInput)
}

func TestValidate_Rejects(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"negative chunk":   func(c *Config) { c.ChunkSize = -1 },
		"compression":      func(c *Config) { c.Compression = "brotli" },
		"module size":      func(c *Config) { c.ModuleSize = -2 },
		"concurrency":      func(c *Config) { c.RenderConcurrency = -1 },
		"negative max txt": func(c *Config) { c.MaxTextBytes = -1 },
	} {
		c := DefaultConfig()
		mutate(&c)
		assert.ErrorIs(t, c.Validate(), ErrInvalidInput, name)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{RecoveryLevel: "none"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
