package compression

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressExpandRoundTrip(t *testing.T) {
	payload := `{"hash":"00","text":"` + strings.Repeat("lorem ipsum ", 500) + `"}`

	for _, mode := range []Mode{None, Zstd, XZ} {
		t.Run(string(mode), func(t *testing.T) {
			packed, err := Compress(payload, mode)
			require.NoError(t, err)
			assert.Equal(t, mode, Detect(packed))

			for i := 0; i < len(packed); i++ {
				require.Less(t, packed[i], byte(0x80))
			}
			if mode != None {
				assert.Less(t, len(packed), len(payload))
			}

			out, err := Expand(packed)
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}
}

func TestExpandPassesUntaggedThrough(t *testing.T) {
	out, err := Expand(`{"hash":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"hash":"x"}`, out)
}

func TestExpandCorrupt(t *testing.T) {
	packed, err := Compress(strings.Repeat("a", 1000), Zstd)
	require.NoError(t, err)

	cases := map[string]string{
		"bad base64": zstdTag + "!!!",
		"truncated":  packed[:len(packed)/2],
		"xz garbage": xzTag + "AAAA",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Expand(in)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

const urlAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func TestExpandRejectsNonCanonicalTail(t *testing.T) {
	for _, mode := range []Mode{Zstd, XZ} {
		t.Run(string(mode), func(t *testing.T) {
			tag := zstdTag
			if mode == XZ {
				tag = xzTag
			}

			var packed string
			for n := 1; ; n++ {
				var err error
				packed, err = Compress(strings.Repeat("hello ", n), mode)
				require.NoError(t, err)
				if (len(packed)-len(tag))%4 != 0 {
					break
				}
			}

			v := strings.IndexByte(urlAlphabet, packed[len(packed)-1])
			altered := packed[:len(packed)-1] + string(urlAlphabet[v^1])
			_, err := Expand(altered)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestExpandRejectsUnusedZstdHeaderBit(t *testing.T) {
	packed, err := Compress("hello", Zstd)
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(packed[len(zstdTag):])
	require.NoError(t, err)
	raw[4] |= 0x10

	_, err = Expand(zstdTag + base64.RawURLEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": None, "none": None, " ZSTD ": Zstd, "xz": XZ} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("brotli")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
