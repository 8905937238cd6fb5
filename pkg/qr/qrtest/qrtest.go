// Package qrtest provides render and scan doubles that skip optical
// encoding, so protocol behavior can be tested without QR decoding noise.
package qrtest

import (
	"context"
	"image"
	"sync"
)

// DefaultTileSize is the edge length of tiles rendered by a Board.
const DefaultTileSize = 16

// Board records every payload it renders and hands the recorded payloads
// back from ScanCodes, whatever image is scanned.
type Board struct {
	// TileSize is the edge length of rendered tiles. Zero means
	// DefaultTileSize.
	TileSize int
	// RenderErr is returned by RenderCode when set.
	RenderErr error
	// ScanErr is returned by ScanCodes when set.
	ScanErr error
	// Mutate rewrites the scan result before it is returned.
	Mutate func(codes []string) []string

	mu    sync.Mutex
	codes []string
}

func (b *Board) RenderCode(payload string) (image.Image, error) {
	if b.RenderErr != nil {
		return nil, b.RenderErr
	}
	b.mu.Lock()
	b.codes = append(b.codes, payload)
	b.mu.Unlock()

	size := b.TileSize
	if size <= 0 {
		size = DefaultTileSize
	}
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = byte(len(payload) + i)
	}
	return img, nil
}

func (b *Board) ScanCodes(ctx context.Context, _ image.Image) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.ScanErr != nil {
		return nil, b.ScanErr
	}
	codes := b.Codes()
	if b.Mutate != nil {
		codes = b.Mutate(codes)
	}
	return codes, nil
}

// Codes returns a copy of the payloads rendered so far.
func (b *Board) Codes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.codes...)
}

// Reset forgets every rendered payload.
func (b *Board) Reset() {
	b.mu.Lock()
	b.codes = nil
	b.mu.Unlock()
}

// Static is a scanner that always finds the same codes.
type Static []string

func (s Static) ScanCodes(ctx context.Context, _ image.Image) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), s...), nil
}

// Blank returns a white image of the given size.
func Blank(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}
