package qr

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/qrtile/pkg/qr/qrtest"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":         High,
		"high":     High,
		"LOW":      Low,
		" medium ": Medium,
		"highest":  Highest,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("ultra")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestCapacityShrinksWithRecovery(t *testing.T) {
	assert.Greater(t, Capacity(Low), Capacity(Medium))
	assert.Greater(t, Capacity(Medium), Capacity(High))
	assert.Greater(t, Capacity(High), Capacity(Highest))
	assert.Equal(t, 1663, Capacity(High))
}

func TestRenderRejectsOversizePayload(t *testing.T) {
	r := NewRenderer(Highest)
	_, err := r.RenderCode(strings.Repeat("a", Capacity(Highest)+1))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRenderScanRoundTrip(t *testing.T) {
	payload := "QT1|0123456789abcdef0123456789abcdef|0|1|11|hello|world"

	img, err := NewRenderer(High).RenderCode(payload)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 21*DefaultModuleSize)

	codes, err := NewScanner().ScanCodes(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, []string{payload}, codes)
}

func TestScanBlankImageFindsNothing(t *testing.T) {
	codes, err := NewScanner().ScanCodes(context.Background(), qrtest.Blank(200, 200))
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestScanHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScanner().ScanCodes(ctx, qrtest.Blank(10, 10))
	assert.ErrorIs(t, err, context.Canceled)
}
