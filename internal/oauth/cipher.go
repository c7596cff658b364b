package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealedVersion prefixes every sealed token and is authenticated as
// additional data, so a tampered version fails to open.
const sealedVersion byte = 0x01

// sealedOverhead is version + XChaCha20 nonce + Poly1305 tag.
const sealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfo separates this key from anything else derived from the same
// secret. Changing it invalidates every stored refresh token.
var hkdfInfo = []byte("supportdesk.oauth.refresh-token.v1")

// ErrInvalidSealedToken is returned when a sealed token cannot be opened.
var ErrInvalidSealedToken = errors.New("invalid sealed token")

// Cipher seals refresh tokens at rest. Sealed values are base64url text
// safe to store anywhere a string fits.
type Cipher struct {
	key []byte
}

// NewCipher derives the sealing key from secret. The secret should be at
// least 32 bytes of high-entropy material.
func NewCipher(secret string) (*Cipher, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 bytes, got %d", len(secret))
	}

	reader := hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Seal encrypts plaintext:
//
//	base64url([version][nonce: 24 bytes][ciphertext+tag])
func (c *Cipher) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating random nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), sealedOverhead+len(plaintext))
	out[0] = sealedVersion
	copy(out[1:], nonce[:])
	out = aead.Seal(out, nonce[:], []byte(plaintext), []byte{sealedVersion})

	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal.
func (c *Cipher) Open(sealed string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(data) < sealedOverhead {
		return "", ErrInvalidSealedToken
	}
	if data[0] != sealedVersion {
		return "", fmt.Errorf("%w: version %d", ErrInvalidSealedToken, data[0])
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := data[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, data[1+chacha20poly1305.NonceSizeX:], data[:1])
	if err != nil {
		return "", ErrInvalidSealedToken
	}
	return string(plaintext), nil
}
