package qrtile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/i5heu/qrtile/internal/ledger"
	"github.com/i5heu/qrtile/pkg/compression"
	"github.com/i5heu/qrtile/pkg/encryption"
	"github.com/i5heu/qrtile/pkg/envelope"
	"github.com/i5heu/qrtile/pkg/reassemble"
)

var (
	errPassphraseRequired = errors.New("payload is encrypted, passphrase required")
	errNotEncrypted       = errors.New("payload is not encrypted, but a passphrase was given")
)

// DecodeOptions configure one decode.
type DecodeOptions struct {
	Passphrase string
}

// Decoded is a verified decode result.
type Decoded struct {
	Text string
	// Digest is the verified SHA-256 of Text.
	Digest      string
	MessageID   string
	TotalChunks int
	Encrypted   bool
	Compression compression.Mode
	Report      reassemble.Report
	// Issued is the ledger entry of the message when this installation
	// encoded it.
	Issued *ledger.Entry
}

// DecodePNG reads a PNG sheet from r and decodes it. Images above the
// configured pixel limit are rejected before they are decoded.
func (c *Codec) DecodePNG(ctx context.Context, r io.Reader, opts DecodeOptions) (*Decoded, error) { // A
	br := bufio.NewReader(r)
	header, err := br.Peek(64)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, c.fail(decodeErr(StageRead, KindInvalidInput, err))
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(header))
	if err != nil {
		return nil, c.fail(decodeErr(StageRead, KindInvalidInput, fmt.Errorf("not a png image: %w", err)))
	}
	if pixels := cfg.Width * cfg.Height; pixels > c.config.MaxImagePixels {
		return nil, c.fail(decodeErr(StageRead, KindInvalidInput,
			fmt.Errorf("image has %d pixels, limit %d", pixels, c.config.MaxImagePixels)))
	}

	img, err := png.Decode(br)
	if err != nil {
		return nil, c.fail(decodeErr(StageRead, KindInvalidInput, fmt.Errorf("decode png: %w", err)))
	}
	return c.Decode(ctx, img, opts)
}

// Decode scans img and decodes the message it carries.
func (c *Codec) Decode(ctx context.Context, img image.Image, opts DecodeOptions) (*Decoded, error) {
	raw, err := c.scanner.ScanCodes(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, c.fail(decodeErr(StageScan, KindInvalidInput, err))
	}
	c.log.Debug("scanned image", "codes", len(raw))
	return c.DecodeStrings(raw, opts)
}

// DecodeStrings decodes a message from the payloads of scanned codes, in any
// order.
func (c *Codec) DecodeStrings(raw []string, opts DecodeOptions) (*Decoded, error) { // A
	report, err := c.reassembler.Reassemble(raw)
	for _, pf := range report.ParseFailures {
		c.log.Debug("dropped scanned code", "position", pf.Position, "error", pf.Err)
	}
	if err != nil {
		return nil, c.fail(decodeErr(StageReassemble, reassembleKind(err), err))
	}

	out := &Decoded{
		MessageID:   report.MessageID,
		TotalChunks: report.Total,
		Report:      report,
	}
	payload := report.Payload

	sealed := encryption.IsSealed(payload)
	switch {
	case sealed && opts.Passphrase == "":
		return nil, c.fail(decodeErr(StageDecrypt, KindAuthentication, fmt.Errorf("%w: %w", encryption.ErrAuthentication, errPassphraseRequired)))
	case !sealed && opts.Passphrase != "":
		return nil, c.fail(decodeErr(StageDecrypt, KindAuthentication, fmt.Errorf("%w: %w", encryption.ErrAuthentication, errNotEncrypted)))
	case sealed:
		payload, err = encryption.NewLayer(opts.Passphrase).Open(payload)
		if err != nil {
			return nil, c.fail(decodeErr(StageDecrypt, KindAuthentication, err))
		}
		out.Encrypted = true
	}

	out.Compression = compression.Detect(payload)
	payload, err = compression.Expand(payload)
	if err != nil {
		return nil, c.fail(decodeErr(StageExpand, KindIntegrity, err))
	}

	env, err := envelope.Unwrap(payload)
	if err != nil {
		return nil, c.fail(decodeErr(StageUnwrap, KindIntegrity, err))
	}
	if err := env.Verify(); err != nil {
		return nil, c.fail(decodeErr(StageVerify, KindIntegrity, err))
	}
	out.Text = env.Text
	out.Digest = env.Digest

	if c.ledger != nil {
		if e, err := c.ledger.Lookup(out.MessageID); err == nil {
			out.Issued = &e
		} else if !errors.Is(err, ledger.ErrNotFound) {
			c.log.Warn("ledger lookup failed", "messageId", out.MessageID, "error", err)
		}
	}

	c.log.Info("decoded message",
		"messageId", out.MessageID,
		"totalChunks", out.TotalChunks,
		"encrypted", out.Encrypted,
		"compression", out.Compression,
		"droppedCodes", len(report.ParseFailures),
		"issuedHere", out.Issued != nil)
	return out, nil
}

func reassembleKind(err error) Kind {
	var (
		ambiguous  *reassemble.AmbiguousMessageError
		incomplete *reassemble.IncompleteMessageError
	)
	switch {
	case errors.As(err, &ambiguous):
		return KindAmbiguous
	case errors.As(err, &incomplete), errors.Is(err, reassemble.ErrNoFragments):
		return KindIncomplete
	default:
		return KindParse
	}
}

func (c *Codec) fail(err *DecodeError) *DecodeError {
	c.log.Warn("decode failed", "stage", err.Stage, "kind", err.Kind, "error", err.Err)
	return err
}
