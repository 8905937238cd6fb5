// Package envelope binds a text payload to its SHA-256 digest and serializes
// the pair into a canonical, pure-ASCII JSON form.
//
// The canonical form is
//
//	{"hash":"<64 lowercase hex digits>","text":"<json string>"}
//
// with HTML escaping disabled and every non-ASCII rune written as a \uXXXX
// escape, so the result is printable ASCII. Unwrap only accepts input that
// re-serializes to exactly the same bytes, so any altered byte either fails to
// parse or changes the digest comparison.
package envelope

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// DigestLen is the length of a hex encoded SHA-256 digest.
const DigestLen = sha256.Size * 2

// Overhead is the number of bytes the canonical form adds around the escaped
// text.
const Overhead = len(`{"hash":"`) + DigestLen + len(`","text":"`) + len(`"}`)

var (
	ErrParse       = errors.New("envelope: malformed payload")
	ErrInvalidText = errors.New("envelope: text is not valid UTF-8")
)

// IntegrityError reports a digest mismatch between the stored and the
// recomputed hash of the text.
type IntegrityError struct {
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("envelope: integrity check failed (sha256 mismatch): stored %s, computed %s", e.Expected, e.Actual)
}

// Envelope is the integrity-protected unit carried by a message.
type Envelope struct {
	Digest string `json:"hash"`
	Text   string `json:"text"`
}

type wireEnvelope struct {
	Digest *string `json:"hash"`
	Text   *string `json:"text"`
}

// Digest returns the lowercase hex SHA-256 of text.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// New creates an envelope for text.
func New(text string) (Envelope, error) {
	if !utf8.ValidString(text) {
		return Envelope{}, ErrInvalidText
	}
	return Envelope{Digest: Digest(text), Text: text}, nil
}

// Wrap digests text and returns its canonical serialized form.
func Wrap(text string) (string, error) { // A
	env, err := New(text)
	if err != nil {
		return "", err
	}
	return env.Marshal()
}

// Marshal returns the canonical serialized form of e.
func (e Envelope) Marshal() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return "", fmt.Errorf("envelope: encode: %w", err)
	}
	return escapeNonASCII(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// Unwrap parses a canonical serialized envelope. It does not verify the
// digest; call Verify for that.
func Unwrap(serialized string) (Envelope, error) { // A
	if !strings.HasPrefix(serialized, "{") {
		return Envelope{}, fmt.Errorf("%w: not a json object", ErrParse)
	}

	dec := json.NewDecoder(strings.NewReader(serialized))
	dec.DisallowUnknownFields()

	var w wireEnvelope
	if err := dec.Decode(&w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Envelope{}, fmt.Errorf("%w: trailing data", ErrParse)
	}
	if w.Digest == nil {
		return Envelope{}, fmt.Errorf("%w: missing hash", ErrParse)
	}
	if w.Text == nil {
		return Envelope{}, fmt.Errorf("%w: missing text", ErrParse)
	}
	if !isDigest(*w.Digest) {
		return Envelope{}, fmt.Errorf("%w: hash is not %d lowercase hex digits", ErrParse, DigestLen)
	}

	env := Envelope{Digest: *w.Digest, Text: *w.Text}
	canonical, err := env.Marshal()
	if err != nil {
		return Envelope{}, err
	}
	if canonical != serialized {
		return Envelope{}, fmt.Errorf("%w: not in canonical form", ErrParse)
	}
	return env, nil
}

// Verify recomputes the digest of the text and compares it to the stored one.
func (e Envelope) Verify() error {
	actual := Digest(e.Text)
	if actual != e.Digest {
		return &IntegrityError{Expected: e.Digest, Actual: actual}
	}
	return nil
}

func isDigest(s string) bool {
	if len(s) != DigestLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// escapeNonASCII rewrites every non-ASCII rune and DEL of a json document as
// \uXXXX. The json encoder already escapes the other control characters, and
// these runes only ever occur inside json strings, where the escape is
// equivalent.
func escapeNonASCII(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r < utf8.RuneSelf && r != 0x7f {
			sb.WriteRune(r)
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			fmt.Fprintf(&sb, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&sb, `\u%04x`, r)
	}
	return sb.String()
}
