package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFragmentEncode(t *testing.T) {
	f := Fragment{MessageID: "a1b2c3d4", Index: 2, Total: 38, Data: "ab|cd"}
	assert.Equal(t, "QT1|a1b2c3d4|2|38|5|ab|cd", f.Encode())
	assert.Equal(t, "3/38", f.Label())
	assert.LessOrEqual(t, len(f.Encode()), Overhead(len(f.MessageID), f.Total, len(f.Data))+len(f.Data))
}

func TestParseFragmentDataMayContainSeparator(t *testing.T) {
	f, err := ParseFragment("QT1|id|0|1|7|a|b|c|d")
	require.NoError(t, err)
	assert.Equal(t, Fragment{MessageID: "id", Index: 0, Total: 1, Data: "a|b|c|d"}, f)
}

func TestParseFragmentRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":              "",
		"no magic":           "id|0|1|1|x",
		"old format":         "a1b2c3d4|0|1|x",
		"wrong magic":        "QT2|id|0|1|1|x",
		"too few fields":     "QT1|id|0|1",
		"empty id":           "QT1||0|1|1|x",
		"bad id char":        "QT1|i.d|0|1|1|x",
		"negative index":     "QT1|id|-1|1|1|x",
		"index out of range": "QT1|id|1|1|1|x",
		"zero total":         "QT1|id|0|0|1|x",
		"leading zero":       "QT1|id|01|2|1|x",
		"plus sign":          "QT1|id|+1|2|1|x",
		"huge number":        "QT1|id|0|9999999999|1|x",
		"short data":         "QT1|id|0|1|3|xy",
		"long data":          "QT1|id|0|1|1|xy",
		"non numeric length": "QT1|id|0|1|x|x",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFragment(in)
			assert.ErrorIs(t, err, ErrMalformedFragment)
		})
	}
}

func TestFragmentWireRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(1, 100000).Draw(t, "total")
		f := Fragment{
			MessageID: rapid.StringMatching(`[0-9A-Za-z_-]{1,64}`).Draw(t, "id"),
			Index:     rapid.IntRange(0, total-1).Draw(t, "index"),
			Total:     total,
			Data:      rapid.String().Draw(t, "data"),
		}
		if err := f.Validate(); err != nil {
			t.Fatalf("validate: %v", err)
		}

		wire := f.Encode()
		if len(wire) > Overhead(len(f.MessageID), f.Total, len(f.Data))+len(f.Data) {
			t.Fatalf("overhead bound violated for %q", wire)
		}
		got, err := ParseFragment(wire)
		if err != nil {
			t.Fatalf("parse %q: %v", wire, err)
		}
		if got != f {
			t.Fatalf("got %+v want %+v", got, f)
		}
	})
}
