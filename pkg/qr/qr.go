// Package qr holds the render and scan capabilities used by the tile packer
// and the decoder, with default implementations on go-qrcode and gozxing.
package qr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"
)

// Level is the error correction level of rendered symbols.
type Level string

const (
	Low     Level = "low"
	Medium  Level = "medium"
	High    Level = "high"
	Highest Level = "highest"
)

// DefaultModuleSize is the edge length of one QR module in pixels.
const DefaultModuleSize = 4

var (
	ErrUnknownLevel = errors.New("qr: unknown recovery level")
	ErrTooLarge     = errors.New("qr: payload exceeds symbol capacity")
)

// ParseLevel maps a configuration string to a Level. The empty string is High.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case "", High:
		return High, nil
	case Low:
		return Low, nil
	case Medium:
		return Medium, nil
	case Highest:
		return Highest, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// Capacity is the byte-mode capacity of a version 40 symbol at level l.
func Capacity(l Level) int {
	switch l {
	case Low:
		return 2953
	case Medium:
		return 2331
	case Highest:
		return 1273
	default:
		return 1663
	}
}

func (l Level) recovery() qrcode.RecoveryLevel {
	switch l {
	case Low:
		return qrcode.Low
	case Medium:
		return qrcode.Medium
	case Highest:
		return qrcode.Highest
	default:
		return qrcode.High
	}
}

// Renderer turns one payload string into one QR image.
type Renderer interface {
	RenderCode(payload string) (image.Image, error)
}

// Scanner returns every QR payload it can find in an image, in no particular
// order. Finding nothing is not an error.
type Scanner interface {
	ScanCodes(ctx context.Context, img image.Image) ([]string, error)
}

// CodeRenderer renders symbols with go-qrcode.
type CodeRenderer struct {
	Level Level
	// ModuleSize is the size of one module in pixels. Zero means
	// DefaultModuleSize.
	ModuleSize int
}

// NewRenderer returns a CodeRenderer for level.
func NewRenderer(level Level) *CodeRenderer {
	return &CodeRenderer{Level: level, ModuleSize: DefaultModuleSize}
}

func (r *CodeRenderer) RenderCode(payload string) (image.Image, error) {
	if len(payload) > Capacity(r.Level) {
		return nil, fmt.Errorf("%w: %d bytes at level %s", ErrTooLarge, len(payload), r.Level)
	}
	code, err := qrcode.New(payload, r.Level.recovery())
	if err != nil {
		return nil, fmt.Errorf("qr: render: %w", err)
	}
	size := r.ModuleSize
	if size <= 0 {
		size = DefaultModuleSize
	}
	return code.Image(-size), nil
}

type multiDecoder interface {
	DecodeMultiple(img *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) ([]*gozxing.Result, error)
}

// CodeScanner finds QR symbols with gozxing. It first looks for every symbol
// in the image and falls back to a single-symbol read when that finds nothing.
type CodeScanner struct {
	TryHarder bool
}

// NewScanner returns a CodeScanner.
func NewScanner() *CodeScanner {
	return &CodeScanner{TryHarder: true}
}

func (s *CodeScanner) ScanCodes(ctx context.Context, img image.Image) ([]string, error) { // A
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("qr: binarize: %w", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{}
	if s.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	var multi multiDecoder = multiqr.NewQRCodeMultiReader()
	results, err := multi.DecodeMultiple(bmp, hints)
	if err == nil && len(results) > 0 {
		out := make([]string, 0, len(results))
		for _, r := range results {
			out = append(out, r.GetText())
		}
		return out, nil
	}
	if err != nil && !isMiss(err) {
		return nil, fmt.Errorf("qr: scan: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		if isMiss(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("qr: scan: %w", err)
	}
	return []string{result.GetText()}, nil
}

// isMiss reports whether err only means no readable symbol was found.
func isMiss(err error) bool {
	var re gozxing.ReaderException
	return errors.As(err, &re)
}
