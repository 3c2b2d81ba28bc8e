// Package credentials resolves the LinkedIn credentials used for a scrape and encrypts
// the ones users choose to store.
package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrDecrypt is returned when a stored secret cannot be opened with the current key.
var ErrDecrypt = errors.New("failed to decrypt stored credentials; ENCRYPTION_KEY may have changed")

// Vault seals secrets with NaCl secretbox. Ciphertexts are the nonce followed by the box.
type Vault struct {
	key [keySize]byte
}

// NewVault creates a vault from a raw 32-byte key.
func NewVault(key [keySize]byte) *Vault {
	return &Vault{key: key}
}

// VaultFromBase64 decodes a base64 (standard or URL alphabet) 32-byte key.
func VaultFromBase64(encoded string) (*Vault, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: want %d bytes, got %d", keySize, len(raw))
	}
	var key [keySize]byte
	copy(key[:], raw)
	return NewVault(key), nil
}

// GenerateKey returns a fresh base64-encoded key suitable for ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// Encrypt seals plaintext under a random nonce.
func (v *Vault) Encrypt(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (v *Vault) Decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plain, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &v.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// Mask hides all but the last four characters of s.
func Mask(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return "****"
	}
	masked := make([]rune, len(r))
	for i := range r {
		if i < len(r)-4 {
			masked[i] = '*'
		} else {
			masked[i] = r[i]
		}
	}
	return string(masked)
}
