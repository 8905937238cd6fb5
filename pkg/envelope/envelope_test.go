package envelope

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWrapCanonicalForm(t *testing.T) {
	got, err := Wrap("hello")
	require.NoError(t, err)

	want := `{"hash":"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824","text":"hello"}`
	assert.Equal(t, want, got)
	assert.Len(t, got, Overhead+len("hello"))
}

func TestWrapEscapesNonASCII(t *testing.T) {
	got, err := Wrap("café 🍵 <b>&")
	require.NoError(t, err)

	for i := 0; i < len(got); i++ {
		require.Less(t, got[i], byte(0x80), "byte %d is not ascii", i)
	}
	assert.Contains(t, got, `caf\u00e9`)
	assert.Contains(t, got, `\ud83c\udf75`)
	assert.Contains(t, got, `<b>&`)

	env, err := Unwrap(got)
	require.NoError(t, err)
	assert.Equal(t, "café 🍵 <b>&", env.Text)
	assert.NoError(t, env.Verify())
}

func TestWrapRejectsInvalidUTF8(t *testing.T) {
	_, err := Wrap("bad \xff byte")
	assert.ErrorIs(t, err, ErrInvalidText)
}

func TestUnwrapRejectsMalformed(t *testing.T) {
	digest := Digest("x")
	cases := map[string]string{
		"empty":         "",
		"not object":    `["x"]`,
		"truncated":     `{"hash":"` + digest,
		"missing text":  `{"hash":"` + digest + `"}`,
		"missing hash":  `{"text":"x"}`,
		"unknown field": `{"hash":"` + digest + `","text":"x","extra":1}`,
		"short digest":  `{"hash":"abc","text":"x"}`,
		"upper digest":  `{"hash":"` + strings.ToUpper(digest) + `","text":"x"}`,
		"trailing data": `{"hash":"` + digest + `","text":"x"}{}`,
		"whitespace":    `{"hash": "` + digest + `", "text": "x"}`,
		"field order":   `{"text":"x","hash":"` + digest + `"}`,
		"key case":      `{"HASH":"` + digest + `","text":"x"}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unwrap(in)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestUnwrapDoesNotVerify(t *testing.T) {
	forged := `{"hash":"` + Digest("original") + `","text":"forged"}`
	env, err := Unwrap(forged)
	require.NoError(t, err)

	err = env.Verify()
	var integrity *IntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, Digest("original"), integrity.Expected)
	assert.Equal(t, Digest("forged"), integrity.Actual)
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")

		serialized, err := Wrap(text)
		if err != nil {
			t.Fatalf("wrap: %v", err)
		}
		for i := 0; i < len(serialized); i++ {
			if serialized[i] < 0x20 || serialized[i] > 0x7e {
				t.Fatalf("byte %d (%#x) is not printable ascii", i, serialized[i])
			}
		}
		env, err := Unwrap(serialized)
		if err != nil {
			t.Fatalf("unwrap: %v", err)
		}
		if env.Text != text {
			t.Fatalf("text mismatch: got %q want %q", env.Text, text)
		}
		if err := env.Verify(); err != nil {
			t.Fatalf("verify: %v", err)
		}
	})
}

// Every single byte change of a canonical envelope is caught either by the
// parser or by the digest comparison.
func TestSingleByteTamperIsDetected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[ -~]{1,64}`).Draw(t, "text")
		serialized, err := Wrap(text)
		if err != nil {
			t.Fatalf("wrap: %v", err)
		}

		pos := rapid.IntRange(0, len(serialized)-1).Draw(t, "pos")
		flip := rapid.ByteRange(1, 255).Draw(t, "flip")
		b := []byte(serialized)
		b[pos] ^= flip

		env, err := Unwrap(string(b))
		if err != nil {
			if !errors.Is(err, ErrParse) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		if env.Verify() == nil {
			t.Fatalf("tampered envelope verified: %q", string(b))
		}
	})
}
