// Package encryption provides AES-256-GCM encryption for secrets at rest.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"runtime"
)

// KeyEnv names the environment variable holding the encryption key material.
const KeyEnv = "MAPTOKEN_ENCRYPTION_KEY"

// ErrCiphertextTooShort is returned when the input cannot contain a nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encryptor provides encryption/decryption for sensitive data
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AES implements AES-256-GCM encryption
type AES struct {
	aead cipher.AEAD
}

// New creates an encryptor keyed from MAPTOKEN_ENCRYPTION_KEY, or from a
// machine-derived value when the variable is unset.
func New() (*AES, error) {
	material := os.Getenv(KeyEnv)
	if material == "" {
		material = deriveMachineKey()
	}

	hash := sha256.Sum256([]byte(material))
	return NewWithKey(hash[:])
}

// NewWithKey creates an encryptor with a specific 32-byte key.
func NewWithKey(key []byte) (*AES, error) {
	if len(key) != 32 {
		return nil, errors.New("key must be 32 bytes for AES-256")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AES{aead: gcm}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (e *AES) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *AES) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// deriveMachineKey combines host identifiers into default key material.
func deriveMachineKey() string {
	material := "maptoken-default-key"

	if hostname, err := os.Hostname(); err == nil {
		material += hostname
	}
	if home, err := os.UserHomeDir(); err == nil {
		material += home
	}

	return material + runtime.GOOS + runtime.GOARCH
}
