// Package crypto encrypts sensitive profile fields at rest and derives their
// masked display form.
//
// Ciphertext format (base64 std encoding of):
//
//	[Version: 1 byte] [Nonce: 24 bytes] [Ciphertext+Tag: N+16 bytes]
//
// The version byte is authenticated as additional data, so a tampered
// version fails to open.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the required size of the master key in bytes.
const KeySize = 32

const blobVersion byte = 0x01

// hkdfInfoField separates field encryption keys from any other key derived
// from the same master. Changing it invalidates every stored ciphertext.
var hkdfInfoField = []byte("mppchs.field.enc.v1")

var (
	ErrInvalidKey        = errors.New("crypto: master key must be 32 bytes")
	ErrMalformed         = errors.New("crypto: malformed ciphertext")
	ErrUnsupportedFormat = errors.New("crypto: unsupported ciphertext version")
)

// Cipher is a field-level AEAD. Safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the field key from masterKey with HKDF-SHA256.
func New(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKey
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, hkdfInfoField), key); err != nil {
		return nil, fmt.Errorf("deriving field key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewFromBase64 decodes a base64 master key (as carried in configuration).
func NewFromBase64(encoded string) (*Cipher, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", err)
	}
	return New(raw)
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating random nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), 1+len(nonce)+len(plaintext)+c.aead.Overhead())
	out[0] = blobVersion
	copy(out[1:], nonce[:])
	out = c.aead.Seal(out, nonce[:], []byte(plaintext), []byte{blobVersion})
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrMalformed
	}
	if len(blob) < 1+chacha20poly1305.NonceSizeX+c.aead.Overhead() {
		return "", ErrMalformed
	}
	if blob[0] != blobVersion {
		return "", ErrUnsupportedFormat
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plain, err := c.aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], blob[:1])
	if err != nil {
		return "", fmt.Errorf("opening ciphertext: %w", err)
	}
	return string(plain), nil
}
