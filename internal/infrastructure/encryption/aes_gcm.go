// Package encryption provides the credential cipher used to store connector secrets.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aurum/backend/internal/domain/connector"
	"golang.org/x/crypto/hkdf"
)

const (
	// versionPrefix tags ciphertexts produced by the current scheme
	versionPrefix = "v1:"

	defaultInfo = "aurum-connector-credentials"

	// MinMasterKeyLength is the shortest accepted master secret
	MinMasterKeyLength = 32
)

var (
	// ErrInvalidMasterKey is returned when the master secret is too short
	ErrInvalidMasterKey = errors.New("encryption: master key must be at least 32 characters")
	// ErrMalformedCiphertext is returned for values this encrypter did not produce
	ErrMalformedCiphertext = errors.New("encryption: malformed ciphertext")
	// ErrAuthenticationFailed is returned when the ciphertext was tampered with or the key is wrong
	ErrAuthenticationFailed = errors.New("encryption: authentication failed")
)

// AESGCMEncrypter encrypts with AES-256-GCM under a key derived from the
// master secret with HKDF-SHA256. Output is "v1:" + base64(nonce || ciphertext || tag).
type AESGCMEncrypter struct {
	aead cipher.AEAD
}

var _ connector.Encrypter = (*AESGCMEncrypter)(nil)

// NewAESGCMEncrypter derives the data key from masterKey. info separates key
// domains; empty selects the connector credential domain.
func NewAESGCMEncrypter(masterKey, info string) (*AESGCMEncrypter, error) {
	if len(masterKey) < MinMasterKeyLength {
		return nil, ErrInvalidMasterKey
	}
	if info == "" {
		info = defaultInfo
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterKey), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &AESGCMEncrypter{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce
func (e *AESGCMEncrypter) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return versionPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt
func (e *AESGCMEncrypter) Decrypt(ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, versionPrefix)
	if !ok {
		return "", fmt.Errorf("%w: unknown version", ErrMalformedCiphertext)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: base64", ErrMalformedCiphertext)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize+e.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrMalformedCiphertext)
	}
	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}
