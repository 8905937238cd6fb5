package testutil

import (
	"flag"
	"testing"

	"github.com/i5heu/qrtile/pkg/model"
)

var RunLong = flag.Bool("long", false, "run tests that render and scan real QR sheets")

func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping real QR sheet test (use -long to enable)")
	}
}

// Wire returns the wire strings of fragments.
func Wire(fragments []model.Fragment) []string {
	out := make([]string, len(fragments))
	for i, f := range fragments {
		out[i] = f.Encode()
	}
	return out
}

// Payload concatenates the data of fragments in slice order.
func Payload(fragments []model.Fragment) string {
	var n int
	for _, f := range fragments {
		n += len(f.Data)
	}
	b := make([]byte, 0, n)
	for _, f := range fragments {
		b = append(b, f.Data...)
	}
	return string(b)
}

// Flip returns s with the byte at pos xored with mask.
func Flip(s string, pos int, mask byte) string {
	b := []byte(s)
	b[pos] ^= mask
	return string(b)
}
