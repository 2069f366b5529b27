// Package token issues subscription confirmation tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// tokenBytes gives 256 bits of entropy, hex-encoded to 64 characters.
const tokenBytes = 32

type Issuer interface {
	Issue() (string, error)
}

// RandomIssuer reads from crypto/rand. A failed read is not retried.
type RandomIssuer struct {
	source io.Reader
}

func NewIssuer() *RandomIssuer {
	return &RandomIssuer{source: rand.Reader}
}

func (i *RandomIssuer) Issue() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := io.ReadFull(i.source, raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// Hash returns the lookup key stored in place of the raw token.
func Hash(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}
