package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands secret into a purpose bound key of the requested length
// using HKDF-SHA256. Distinct info labels yield independent keys from one secret.
func DeriveKey(secret []byte, info string, length int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("hkdf: secret is required")
	}
	switch length {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("hkdf: key length must be 16, 24, or 32 bytes (got %d)", length)
	}

	key := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("hkdf: derive: %w", err)
	}
	return key, nil
}
