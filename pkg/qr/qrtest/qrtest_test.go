package qrtest

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlankIsWhite(t *testing.T) {
	img := Blank(5, 3)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			assert.Equal(t, color.Gray{Y: 0xff}, color.GrayModel.Convert(img.At(x, y)))
		}
	}
}

func TestBoardReturnsRenderedCodes(t *testing.T) {
	b := &Board{}
	img, err := b.RenderCode("one")
	require.NoError(t, err)
	assert.Equal(t, DefaultTileSize, img.Bounds().Dx())
	_, err = b.RenderCode("two")
	require.NoError(t, err)

	codes, err := b.ScanCodes(context.Background(), Blank(1, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, codes)

	b.Mutate = func(codes []string) []string { return codes[:1] }
	codes, err = b.ScanCodes(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, codes)

	b.Reset()
	assert.Empty(t, b.Codes())
}

func TestBoardErrors(t *testing.T) {
	boom := errors.New("boom")
	b := &Board{RenderErr: boom, ScanErr: boom}
	_, err := b.RenderCode("x")
	assert.ErrorIs(t, err, boom)
	_, err = b.ScanCodes(context.Background(), nil)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Static{"a"}.ScanCodes(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
