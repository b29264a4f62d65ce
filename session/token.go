package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// TokenBytes is the number of random bytes behind every session token (256 bits).
const TokenBytes = 32

// ErrEmptySecret is returned when a hasher is built without key material.
var ErrEmptySecret = errors.New("session hasher secret is empty")

// NewToken returns a fresh opaque session token encoded as base64url without padding.
func NewToken() (string, error) {
	var raw [TokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Hasher derives storage keys from plaintext tokens.
type Hasher struct {
	key []byte
}

// NewHasher builds a Hasher keyed with secret.
func NewHasher(secret string) (*Hasher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Hasher{key: []byte(secret)}, nil
}

// Hash returns the hex-encoded HMAC-SHA256 digest of token.
func (h *Hasher) Hash(token string) string {
	mac := hmac.New(sha256.New, h.key)
	_, _ = mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
