// Package compression optionally shrinks a serialized envelope before it is
// encrypted and chunked. Compressed payloads are tagged and base64url encoded
// so they stay printable ASCII; untagged payloads pass through untouched.
package compression

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Mode selects the compression algorithm.
type Mode string

const (
	None Mode = "none"
	Zstd Mode = "zstd"
	XZ   Mode = "xz"
)

const (
	zstdTag = "~zstd~"
	xzTag   = "~xz~"
)

// maxExpandedSize bounds the decompressed size of a payload.
const maxExpandedSize = 64 << 20

var (
	ErrUnknownMode = errors.New("compression: unknown mode")
	ErrCorrupt     = errors.New("compression: corrupt payload")
)

// ParseMode maps a configuration string to a Mode. The empty string is None.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", None:
		return None, nil
	case Zstd:
		return Zstd, nil
	case XZ:
		return XZ, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Compress returns payload compressed with mode and tagged. None returns the
// payload unchanged.
func Compress(payload string, mode Mode) (string, error) { // A
	switch mode {
	case "", None:
		return payload, nil
	case Zstd:
		raw, err := compressWithZstd([]byte(payload))
		if err != nil {
			return "", fmt.Errorf("compression: zstd: %w", err)
		}
		return zstdTag + base64.RawURLEncoding.EncodeToString(raw), nil
	case XZ:
		raw, err := compressWithXZ([]byte(payload))
		if err != nil {
			return "", fmt.Errorf("compression: xz: %w", err)
		}
		return xzTag + base64.RawURLEncoding.EncodeToString(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// Detect reports the mode a payload was compressed with.
func Detect(payload string) Mode {
	switch {
	case strings.HasPrefix(payload, zstdTag):
		return Zstd
	case strings.HasPrefix(payload, xzTag):
		return XZ
	default:
		return None
	}
}

// Expand reverses Compress. Untagged payloads are returned unchanged.
func Expand(payload string) (string, error) { // A
	var (
		tag        string
		decompress func([]byte) ([]byte, error)
	)
	switch Detect(payload) {
	case Zstd:
		tag, decompress = zstdTag, decompressWithZstd
	case XZ:
		tag, decompress = xzTag, decompressWithXZ
	default:
		return payload, nil
	}

	raw, err := base64.RawURLEncoding.Strict().DecodeString(payload[len(tag):])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	out, err := decompress(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(out), nil
}

func compressWithZstd(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWithZstd(data []byte) ([]byte, error) {
	// decoders skip the unused frame header bit, so a set bit would alter
	// the payload without altering its expansion
	if len(data) > 4 && data[4]&0x10 != 0 {
		return nil, errors.New("zstd: unused frame header bit set")
	}
	dec, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderMaxMemory(maxExpandedSize))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return readBounded(dec)
}

func compressWithXZ(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWithXZ(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return readBounded(r)
}

func readBounded(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxExpandedSize+1))
	if err != nil {
		return nil, err
	}
	if n > maxExpandedSize {
		return nil, fmt.Errorf("expanded payload exceeds %d bytes", maxExpandedSize)
	}
	return buf.Bytes(), nil
}
