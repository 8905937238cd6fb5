package qrtile

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"gopkg.in/yaml.v2"

	"github.com/i5heu/qrtile/pkg/compression"
	"github.com/i5heu/qrtile/pkg/model"
	"github.com/i5heu/qrtile/pkg/qr"
)

const (
	DefaultChunkSize      = 500
	DefaultRecoveryLevel  = qr.High
	DefaultMaxTextBytes   = 4 << 20
	DefaultMaxChunks      = 4096
	DefaultMaxImagePixels = 64 << 20
	DefaultMaxUploadBytes = 32 << 20
	DefaultListen         = ":8000"
	DefaultLogLevel       = "info"

	// messageIDLen is the length of generated message ids.
	messageIDLen = 32
)

// Config configures a Codec. Zero values take the defaults above.
type Config struct {
	ChunkSize     int    `yaml:"chunkSize"`
	RecoveryLevel string `yaml:"recoveryLevel"`
	ModuleSize    int    `yaml:"moduleSize"`
	DisableLabels bool   `yaml:"disableLabels"`
	Compression   string `yaml:"compression"`

	RenderConcurrency int `yaml:"renderConcurrency"`

	MaxTextBytes   int `yaml:"maxTextBytes"`
	MaxChunks      int `yaml:"maxChunks"`
	MaxImagePixels int `yaml:"maxImagePixels"`
	MaxUploadBytes int `yaml:"maxUploadBytes"`

	Listen string `yaml:"listen"`
	// LedgerPath enables the issued-id ledger when set.
	LedgerPath string `yaml:"ledgerPath"`
	LogLevel   string `yaml:"logLevel"`

	// Logger is an optional structured logger. If nil, logging.Logger is used.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

// LoadConfig reads a yaml config file and applies defaults for every field it
// leaves out. Unknown keys are an error.
func LoadConfig(path string) (Config, error) { // A
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("qrtile: read config: %w", err)
	}
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("%w: config %s: %v", ErrInvalidInput, path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.RecoveryLevel == "" {
		c.RecoveryLevel = string(DefaultRecoveryLevel)
	}
	if c.ModuleSize == 0 {
		c.ModuleSize = qr.DefaultModuleSize
	}
	if c.Compression == "" {
		c.Compression = string(compression.None)
	}
	if c.RenderConcurrency == 0 {
		c.RenderConcurrency = runtime.GOMAXPROCS(0)
	}
	if c.MaxTextBytes == 0 {
		c.MaxTextBytes = DefaultMaxTextBytes
	}
	if c.MaxChunks == 0 {
		c.MaxChunks = DefaultMaxChunks
	}
	if c.MaxImagePixels == 0 {
		c.MaxImagePixels = DefaultMaxImagePixels
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate checks c after defaults were applied.
func (c Config) Validate() error { // A
	level, err := qr.ParseLevel(c.RecoveryLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := compression.ParseMode(c.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if c.ModuleSize < 1 {
		return fmt.Errorf("%w: module size %d", ErrInvalidInput, c.ModuleSize)
	}
	if c.RenderConcurrency < 1 {
		return fmt.Errorf("%w: render concurrency %d", ErrInvalidInput, c.RenderConcurrency)
	}
	if c.MaxTextBytes < 1 || c.MaxChunks < 1 || c.MaxImagePixels < 1 || c.MaxUploadBytes < 1 {
		return fmt.Errorf("%w: limits must be positive", ErrInvalidInput)
	}
	return checkChunkSize(c.ChunkSize, level, c.MaxChunks)
}

// checkChunkSize verifies that a full fragment of chunkSize bytes fits one
// symbol at level.
func checkChunkSize(chunkSize int, level qr.Level, maxChunks int) error {
	if chunkSize < 1 {
		return fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidInput, chunkSize)
	}
	wire := chunkSize + model.Overhead(messageIDLen, maxChunks, chunkSize)
	if capacity := qr.Capacity(level); wire > capacity {
		return fmt.Errorf("%w: chunk size %d needs %d bytes per code, %s recovery holds %d",
			ErrInvalidInput, chunkSize, wire, level, capacity)
	}
	return nil
}

func (c Config) recoveryLevel() qr.Level {
	level, _ := qr.ParseLevel(c.RecoveryLevel)
	return level
}

func (c Config) compressionMode() compression.Mode {
	mode, _ := compression.ParseMode(c.Compression)
	return mode
}
