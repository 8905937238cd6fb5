/*
Package qrtile turns text into a single image of tiled QR codes and back.

Encoding wraps the text with its SHA-256 digest, optionally compresses and
encrypts the result, cuts it into fragments that each carry a message id,
their index and the fragment count, and packs one QR code per fragment onto a
grid. Decoding scans every code of the image, reassembles the fragments by
index, reverses the optional layers and verifies the digest.
*/
package qrtile

import (
	"fmt"
	"log/slog"

	"github.com/i5heu/qrtile/internal/ledger"
	"github.com/i5heu/qrtile/pkg/logging"
	"github.com/i5heu/qrtile/pkg/qr"
	"github.com/i5heu/qrtile/pkg/reassemble"
	"github.com/i5heu/qrtile/pkg/tile"
)

// maxIDAttempts bounds message id regeneration on ledger collisions.
const maxIDAttempts = 5

// Codec encodes text into tile sheets and decodes them. A Codec holds no
// per-request state and is safe for concurrent use.
type Codec struct {
	log    *slog.Logger
	config Config

	renderer    qr.Renderer
	scanner     qr.Scanner
	reassembler *reassemble.Reassembler
	ledger      *ledger.Ledger
}

// Option customizes a Codec.
type Option func(*Codec)

// WithRenderer replaces the go-qrcode renderer.
func WithRenderer(r qr.Renderer) Option {
	return func(c *Codec) { c.renderer = r }
}

// WithScanner replaces the default sweep scanner.
func WithScanner(s qr.Scanner) Option {
	return func(c *Codec) { c.scanner = s }
}

// New validates conf and builds a Codec. When conf.LedgerPath is set the
// ledger is opened and must be released with Close.
func New(conf Config, opts ...Option) (*Codec, error) { // A
	conf.applyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if conf.Logger == nil {
		conf.Logger = logging.Logger
	}

	c := &Codec{
		log:         conf.Logger,
		config:      conf,
		reassembler: reassemble.New(reassemble.Options{MaxTotal: conf.MaxChunks}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.renderer == nil {
		c.renderer = &qr.CodeRenderer{Level: conf.recoveryLevel(), ModuleSize: conf.ModuleSize}
	}
	if c.scanner == nil {
		c.scanner = &tile.SweepScanner{
			Scanner:     qr.NewScanner(),
			Concurrency: conf.RenderConcurrency,
			Logger:      conf.Logger,
		}
	}

	if conf.LedgerPath != "" {
		l, err := ledger.Open(ledger.Config{Path: conf.LedgerPath, Logger: conf.Logger})
		if err != nil {
			return nil, err
		}
		c.ledger = l
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Codec) Config() Config {
	return c.config
}

// History lists up to limit ledger entries, newest first.
func (c *Codec) History(limit int) ([]ledger.Entry, error) {
	if c.ledger == nil {
		return nil, fmt.Errorf("%w: ledger disabled", ErrInvalidInput)
	}
	return c.ledger.List(limit)
}

// Close releases the ledger.
func (c *Codec) Close() error {
	if c.ledger == nil {
		return nil
	}
	return c.ledger.Close()
}
