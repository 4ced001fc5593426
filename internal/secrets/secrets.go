// Package secrets encrypts client API keys at rest using Fernet tokens, so keys
// written by earlier deployments stay readable.
package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
)

var (
	ErrNoKey        = errors.New("secrets: ENCRYPTION_KEY is not set")
	ErrInvalidToken = errors.New("secrets: invalid or tampered token")
)

// Cipher is a symmetric encrypt/decrypt pair.
type Cipher struct {
	keys []*fernet.Key
}

// New parses a url-safe base64 Fernet key.
func New(encodedKey string) (*Cipher, error) {
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		return nil, ErrNoKey
	}
	k, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode key: %w", err)
	}
	return &Cipher{keys: []*fernet.Key{k}}, nil
}

// GenerateKey returns a fresh encoded key suitable for ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("secrets: generate key: %w", err)
	}
	return k.Encode(), nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.keys[0])
	if err != nil {
		return "", fmt.Errorf("secrets: encrypt: %w", err)
	}
	return string(tok), nil
}

// Decrypt verifies and decrypts a token. Tokens never expire.
func (c *Cipher) Decrypt(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(strings.TrimSpace(token)), 0, c.keys)
	if msg == nil {
		return "", ErrInvalidToken
	}
	return string(msg), nil
}
