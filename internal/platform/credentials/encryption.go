// Package credentials encrypts platform credentials (Reddit refresh tokens,
// Twitter bearer tokens, Quora session cookies) at rest: AES-256-GCM with a
// PBKDF2 key derived from a single master secret.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

const (
	keyLen     = 32 // AES-256
	saltLen    = 16
	pbkdf2Iter = 100_000
)

var ErrDecryptFailed = errors.New("credential decryption failed")

// Box encrypts and decrypts credential strings with a key derived from a
// single master secret (SECURITY.EncryptionKey in config). One Box is
// shared by every platform adapter; it holds no per-credential state.
type Box struct {
	secret []byte
}

func New(masterSecret string) *Box {
	return &Box{secret: []byte(masterSecret)}
}

// Encrypt returns a base64 string encoding salt|nonce|ciphertext, with a
// fresh random salt (and therefore a fresh derived key) per call so two
// encryptions of the same plaintext never collide.
func (b *Box) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := pbkdf2.Key(b.secret, salt, pbkdf2Iter, keyLen, sha3.New256)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt, re-deriving the key from the salt embedded in
// the payload.
func (b *Box) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(raw) < saltLen {
		return "", ErrDecryptFailed
	}
	salt, rest := raw[:saltLen], raw[saltLen:]
	key := pbkdf2.Key(b.secret, salt, pbkdf2Iter, keyLen, sha3.New256)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrDecryptFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(rest) < gcm.NonceSize() {
		return "", ErrDecryptFailed
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
