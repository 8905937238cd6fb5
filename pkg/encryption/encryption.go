// Package encryption is the optional confidentiality layer. A passphrase is
// turned into a symmetric key with SHA-256 and payloads are sealed with
// XChaCha20-Poly1305. Sealed payloads are tagged, base64url encoded text so
// they can be chunked like any other serialized payload.
package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Tag prefixes every sealed payload.
const Tag = "~x20p~"

// KeySize is the size of a derived key in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	// ErrAuthentication is returned when a payload cannot be opened with the
	// given key: wrong passphrase, altered ciphertext, or not a ciphertext.
	ErrAuthentication  = errors.New("encryption: decryption failed, wrong passphrase or corrupted data")
	ErrEmptyPassphrase = errors.New("encryption: empty passphrase")
)

// Key is a symmetric key derived from a passphrase.
type Key [KeySize]byte

// DeriveKey returns SHA-256(passphrase). The same passphrase always yields the
// same key.
func DeriveKey(passphrase string) (Key, error) {
	if passphrase == "" {
		return Key{}, ErrEmptyPassphrase
	}
	return Key(sha256.Sum256([]byte(passphrase))), nil
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(key Key, plaintext string) (string, error) { // A
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return "", fmt.Errorf("encryption: new cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("encryption: nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(Tag))
	return Tag + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a payload produced by Encrypt. Every failure is reported as
// ErrAuthentication.
func Decrypt(key Key, ciphertext string) (string, error) { // A
	if !IsSealed(ciphertext) {
		return "", fmt.Errorf("%w: payload is not encrypted", ErrAuthentication)
	}
	raw, err := base64.RawURLEncoding.Strict().DecodeString(ciphertext[len(Tag):])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return "", fmt.Errorf("encryption: new cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrAuthentication)
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(Tag))
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plain), nil
}

// IsSealed reports whether payload carries the sealed payload tag.
func IsSealed(payload string) bool {
	return strings.HasPrefix(payload, Tag)
}

// SealedLen returns the length of Encrypt's output for a plaintext of n bytes.
func SealedLen(n int) int {
	return len(Tag) + base64.RawURLEncoding.EncodedLen(chacha20poly1305.NonceSizeX+n+chacha20poly1305.Overhead)
}

// Layer applies the confidentiality layer for one request. A zero Layer is the
// identity.
type Layer struct {
	key     Key
	enabled bool
}

// NewLayer returns a Layer keyed by passphrase, or the identity layer when the
// passphrase is empty.
func NewLayer(passphrase string) Layer {
	if passphrase == "" {
		return Layer{}
	}
	key, _ := DeriveKey(passphrase)
	return Layer{key: key, enabled: true}
}

// Enabled reports whether the layer encrypts.
func (l Layer) Enabled() bool { return l.enabled }

// Seal encrypts payload, or returns it unchanged for the identity layer.
func (l Layer) Seal(payload string) (string, error) {
	if !l.enabled {
		return payload, nil
	}
	return Encrypt(l.key, payload)
}

// Open decrypts payload, or returns it unchanged for the identity layer.
func (l Layer) Open(payload string) (string, error) {
	if !l.enabled {
		return payload, nil
	}
	return Decrypt(l.key, payload)
}
