package qrtile

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"time"

	"github.com/i5heu/qrtile/internal/ledger"
	"github.com/i5heu/qrtile/pkg/chunker"
	"github.com/i5heu/qrtile/pkg/compression"
	"github.com/i5heu/qrtile/pkg/encryption"
	"github.com/i5heu/qrtile/pkg/envelope"
	"github.com/i5heu/qrtile/pkg/model"
	"github.com/i5heu/qrtile/pkg/tile"
)

// EncodeOptions override the configured defaults for one encode.
type EncodeOptions struct {
	// ChunkSize is the fragment data size in bytes. Zero means the configured
	// size.
	ChunkSize int
	// Passphrase enables encryption when non-empty.
	Passphrase string
	// Compression is "none", "zstd" or "xz". Empty means the configured mode.
	Compression string
	// Labels overrides the configured label setting when non-nil.
	Labels *bool
}

// Encoded is the result of an encode.
type Encoded struct {
	Sheet       *tile.Sheet
	Fragments   []model.Fragment
	MessageID   string
	TotalChunks int
	// Digest is the SHA-256 of the text.
	Digest string
	// PayloadLen is the length of the serialized payload that was split.
	PayloadLen  int
	Encrypted   bool
	Compression compression.Mode
}

type encodePlan struct {
	chunkSize int
	mode      compression.Mode
	layer     encryption.Layer
	labels    bool
}

func (c *Codec) plan(text string, opts EncodeOptions) (encodePlan, error) {
	if len(text) > c.config.MaxTextBytes {
		return encodePlan{}, fmt.Errorf("%w: text is %d bytes, limit %d", ErrInvalidInput, len(text), c.config.MaxTextBytes)
	}
	p := encodePlan{
		chunkSize: c.config.ChunkSize,
		mode:      c.config.compressionMode(),
		layer:     encryption.NewLayer(opts.Passphrase),
		labels:    !c.config.DisableLabels,
	}
	if opts.ChunkSize != 0 {
		if err := checkChunkSize(opts.ChunkSize, c.config.recoveryLevel(), c.config.MaxChunks); err != nil {
			return encodePlan{}, err
		}
		p.chunkSize = opts.ChunkSize
	}
	if opts.Compression != "" {
		mode, err := compression.ParseMode(opts.Compression)
		if err != nil {
			return encodePlan{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		p.mode = mode
	}
	if opts.Labels != nil {
		p.labels = *opts.Labels
	}
	return p, nil
}

// serialize runs Wrap, Compress and Encrypt.
func (p encodePlan) serialize(text string) (payload, digest string, err error) {
	env, err := envelope.New(text)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	payload, err = env.Marshal()
	if err != nil {
		return "", "", err
	}
	if payload, err = compression.Compress(payload, p.mode); err != nil {
		return "", "", err
	}
	if payload, err = p.layer.Seal(payload); err != nil {
		return "", "", err
	}
	return payload, env.Digest, nil
}

// Encode turns text into a packed tile sheet.
func (c *Codec) Encode(ctx context.Context, text string, opts EncodeOptions) (*Encoded, error) { // A
	start := time.Now()
	p, err := c.plan(text, opts)
	if err != nil {
		return nil, err
	}
	payload, digest, err := p.serialize(text)
	if err != nil {
		return nil, err
	}

	total := chunker.EstimateChunks(len(payload), p.chunkSize)
	if total > c.config.MaxChunks {
		return nil, fmt.Errorf("%w: %d chunks needed, limit %d", ErrInvalidInput, total, c.config.MaxChunks)
	}

	id, err := c.issueID(ledger.Entry{
		TotalChunks: total,
		ChunkSize:   p.chunkSize,
		Digest:      digest,
		Encrypted:   p.layer.Enabled(),
		Compression: string(p.mode),
	})
	if err != nil {
		return nil, err
	}

	fragments, err := chunker.SplitWithID(payload, p.chunkSize, id)
	if err != nil {
		c.releaseID(id)
		return nil, fmt.Errorf("qrtile: split: %w", err)
	}

	packer := tile.NewPacker(c.renderer, tile.Options{
		Labels:      p.labels,
		Concurrency: c.config.RenderConcurrency,
		Logger:      c.log,
	})
	sheet, err := packer.Pack(ctx, fragments)
	if err != nil {
		c.releaseID(id)
		return nil, fmt.Errorf("qrtile: pack: %w", err)
	}

	c.log.Info("encoded message",
		"messageId", id,
		"totalChunks", len(fragments),
		"chunkSize", p.chunkSize,
		"encrypted", p.layer.Enabled(),
		"compression", p.mode,
		"took", time.Since(start))

	return &Encoded{
		Sheet:       sheet,
		Fragments:   fragments,
		MessageID:   id,
		TotalChunks: len(fragments),
		Digest:      digest,
		PayloadLen:  len(payload),
		Encrypted:   p.layer.Enabled(),
		Compression: p.mode,
	}, nil
}

// EncodePNG encodes text and writes the sheet to w as PNG.
func (c *Codec) EncodePNG(ctx context.Context, w io.Writer, text string, opts EncodeOptions) (*Encoded, error) {
	enc, err := c.Encode(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	if err := png.Encode(w, enc.Sheet.Image); err != nil {
		c.releaseID(enc.MessageID)
		return nil, fmt.Errorf("qrtile: write png: %w", err)
	}
	return enc, nil
}

// issueID returns a fresh message id, reserved in the ledger when one is
// configured.
func (c *Codec) issueID(e ledger.Entry) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := chunker.NewMessageID()
		if err != nil {
			return "", err
		}
		if c.ledger == nil {
			return id, nil
		}
		e.MessageID = id
		err = c.ledger.Reserve(e)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ledger.ErrExists) {
			return "", err
		}
		c.log.Warn("message id collision, regenerating", "messageId", id, "attempt", attempt+1)
	}
	return "", fmt.Errorf("qrtile: no unused message id after %d attempts", maxIDAttempts)
}

// releaseID drops the reservation of an id whose sheet was never produced.
func (c *Codec) releaseID(id string) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.Release(id); err != nil {
		c.log.Warn("failed to release message id", "messageId", id, "error", err)
	}
}

// Estimation predicts the fragment count of an encode.
type Estimation struct {
	PayloadLen  int
	ChunkSize   int
	TotalChunks int
}

// Estimate predicts how many tiles Encode would produce for text with opts.
// The result is exact: it serializes the text the way Encode does, except that
// encryption is accounted for by length only.
func (c *Codec) Estimate(text string, opts EncodeOptions) (Estimation, error) {
	p, err := c.plan(text, opts)
	if err != nil {
		return Estimation{}, err
	}
	sealed := p.layer.Enabled()
	p.layer = encryption.Layer{}
	payload, _, err := p.serialize(text)
	if err != nil {
		return Estimation{}, err
	}
	n := len(payload)
	if sealed {
		n = encryption.SealedLen(n)
	}
	return Estimation{
		PayloadLen:  n,
		ChunkSize:   p.chunkSize,
		TotalChunks: chunker.EstimateChunks(n, p.chunkSize),
	}, nil
}

// EstimateLength is the package level EstimateLength bounded by the codec's
// configuration: textLen may not exceed MaxTextBytes and a non-zero chunkSize
// must fit a QR symbol. A zero chunkSize means the configured one.
func (c *Codec) EstimateLength(textLen, chunkSize int, encrypted bool) (Estimation, error) {
	if textLen < 0 || textLen > c.config.MaxTextBytes {
		return Estimation{}, fmt.Errorf("%w: length %d outside [0, %d]", ErrInvalidInput, textLen, c.config.MaxTextBytes)
	}
	if chunkSize == 0 {
		chunkSize = c.config.ChunkSize
	} else if err := checkChunkSize(chunkSize, c.config.recoveryLevel(), c.config.MaxChunks); err != nil {
		return Estimation{}, err
	}
	n := textLen + envelope.Overhead
	if encrypted {
		n = encryption.SealedLen(n)
	}
	return Estimation{
		PayloadLen:  n,
		ChunkSize:   chunkSize,
		TotalChunks: chunker.EstimateChunks(n, chunkSize),
	}, nil
}

// EstimateLength predicts the fragment count for a printable ASCII text of
// textLen bytes without compression.
func EstimateLength(textLen, chunkSize int, encrypted bool) int {
	n := textLen + envelope.Overhead
	if encrypted {
		n = encryption.SealedLen(n)
	}
	return chunker.EstimateChunks(n, chunkSize)
}
