package connector

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Encrypter is the symmetric encryption capability used to protect stored
// credentials. The algorithm is a deployment concern.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// ---------------------------------------------------------------------------
// Credential Entity
// ---------------------------------------------------------------------------

// Credential holds the encrypted API key pair of a connector (1:1).
type Credential struct {
	ConnectorID      uuid.UUID
	KeyCiphertext    string
	SecretCiphertext string
	UpdatedAt        time.Time
}

// SealCredential encrypts the given plaintext credentials for storage
func SealCredential(connectorID uuid.UUID, creds ClientCredentials, enc Encrypter) (*Credential, error) {
	if !creds.IsComplete() {
		return nil, ErrMissingCredentials
	}
	keyCipher, err := enc.Encrypt(creds.ConsumerKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt consumer key: %w", err)
	}
	secretCipher, err := enc.Encrypt(creds.ConsumerSecret)
	if err != nil {
		return nil, fmt.Errorf("encrypt consumer secret: %w", err)
	}
	return &Credential{
		ConnectorID:      connectorID,
		KeyCiphertext:    keyCipher,
		SecretCiphertext: secretCipher,
		UpdatedAt:        time.Now(),
	}, nil
}

// Open decrypts the stored pair. The result must not outlive client construction.
func (c *Credential) Open(enc Encrypter) (ClientCredentials, error) {
	key, err := enc.Decrypt(c.KeyCiphertext)
	if err != nil {
		return ClientCredentials{}, fmt.Errorf("%w: consumer key: %v", ErrCredentialDecrypt, err)
	}
	secret, err := enc.Decrypt(c.SecretCiphertext)
	if err != nil {
		return ClientCredentials{}, fmt.Errorf("%w: consumer secret: %v", ErrCredentialDecrypt, err)
	}
	return ClientCredentials{ConsumerKey: key, ConsumerSecret: secret}, nil
}

// Rotate re-encrypts only the supplied values; nil or blank values keep the existing ciphertext.
// It reports whether anything changed.
func (c *Credential) Rotate(enc Encrypter, consumerKey, consumerSecret *string) (bool, error) {
	changed := false
	if consumerKey != nil && strings.TrimSpace(*consumerKey) != "" {
		cipher, err := enc.Encrypt(*consumerKey)
		if err != nil {
			return false, fmt.Errorf("encrypt consumer key: %w", err)
		}
		c.KeyCiphertext = cipher
		changed = true
	}
	if consumerSecret != nil && strings.TrimSpace(*consumerSecret) != "" {
		cipher, err := enc.Encrypt(*consumerSecret)
		if err != nil {
			return false, fmt.Errorf("encrypt consumer secret: %w", err)
		}
		c.SecretCiphertext = cipher
		changed = true
	}
	if changed {
		c.UpdatedAt = time.Now()
	}
	return changed, nil
}

// ---------------------------------------------------------------------------
// ClientCredentials value object
// ---------------------------------------------------------------------------

const redacted = "[REDACTED]"

// ClientCredentials is a decrypted key pair. Every textual rendering is redacted
// so it cannot leak through logs or serialized payloads.
type ClientCredentials struct {
	ConsumerKey    string
	ConsumerSecret string
}

// IsComplete returns true if both key and secret are present
func (c ClientCredentials) IsComplete() bool {
	return strings.TrimSpace(c.ConsumerKey) != "" && strings.TrimSpace(c.ConsumerSecret) != ""
}

// String implements fmt.Stringer
func (c ClientCredentials) String() string {
	return redacted
}

// GoString implements fmt.GoStringer
func (c ClientCredentials) GoString() string {
	return redacted
}

// MarshalJSON implements json.Marshaler
func (c ClientCredentials) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
