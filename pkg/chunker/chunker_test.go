package chunker

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/i5heu/qrtile/pkg/model"
)

func TestSplitSizes(t *testing.T) {
	payload := strings.Repeat("abcdefghij", 25) + "xyz" // 253 bytes

	fragments, err := Split(payload, 100)
	require.NoError(t, err)
	require.Len(t, fragments, 3)

	id := fragments[0].MessageID
	for i, f := range fragments {
		assert.Equal(t, id, f.MessageID)
		assert.Equal(t, i, f.Index)
		assert.Equal(t, 3, f.Total)
	}
	assert.Len(t, fragments[0].Data, 100)
	assert.Len(t, fragments[1].Data, 100)
	assert.Len(t, fragments[2].Data, 53)
}

func TestSplitExactMultiple(t *testing.T) {
	fragments, err := SplitWithID(strings.Repeat("x", 30), 10, "m1")
	require.NoError(t, err)
	require.Len(t, fragments, 3)
	assert.Equal(t, model.Fragment{MessageID: "m1", Index: 2, Total: 3, Data: "xxxxxxxxxx"}, fragments[2])
}

func TestSplitRejectsInvalidInput(t *testing.T) {
	_, err := Split("abc", 0)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = Split("abc", -5)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = Split("", 10)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = Split("café", 10)
	assert.ErrorIs(t, err, ErrNonASCII)

	_, err = SplitWithID("abc", 10, "bad|id")
	assert.ErrorIs(t, err, model.ErrMalformedFragment)
}

func TestSplitGeneratesFreshIDs(t *testing.T) {
	hexID := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		fragments, err := Split("payload", 3)
		require.NoError(t, err)
		id := fragments[0].MessageID
		assert.Regexp(t, hexID, id)
		assert.False(t, seen[id], "message id reused: %s", id)
		seen[id] = true
	}
}

func TestEstimateChunks(t *testing.T) {
	assert.Equal(t, 0, EstimateChunks(0, 10))
	assert.Equal(t, 0, EstimateChunks(10, 0))
	assert.Equal(t, 1, EstimateChunks(1, 10))
	assert.Equal(t, 1, EstimateChunks(10, 10))
	assert.Equal(t, 2, EstimateChunks(11, 10))
	assert.Equal(t, 38, EstimateChunks(30085, 800))
}

func TestSplitConcatenationReproducesPayload(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := string(rapid.SliceOfN(rapid.ByteRange(' ', '~'), 1, 2000).Draw(t, "payload"))
		size := rapid.IntRange(1, 300).Draw(t, "chunkSize")

		fragments, err := Split(payload, size)
		if err != nil {
			t.Fatalf("split: %v", err)
		}
		if len(fragments) != EstimateChunks(len(payload), size) {
			t.Fatalf("estimate %d, got %d fragments", EstimateChunks(len(payload), size), len(fragments))
		}

		var sb strings.Builder
		for i, f := range fragments {
			if f.Index != i || f.Total != len(fragments) {
				t.Fatalf("bad metadata on fragment %d: %+v", i, f)
			}
			if i < len(fragments)-1 && len(f.Data) != size {
				t.Fatalf("fragment %d has %d bytes, want %d", i, len(f.Data), size)
			}
			if len(f.Data) == 0 || len(f.Data) > size {
				t.Fatalf("fragment %d has %d bytes", i, len(f.Data))
			}
			sb.WriteString(f.Data)
		}
		if sb.String() != payload {
			t.Fatalf("concatenation does not reproduce payload")
		}
	})
}
