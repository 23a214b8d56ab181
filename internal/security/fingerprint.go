package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Fingerprinter derives the indexed storage key for a refresh secret: a keyed
// HMAC-SHA256, hex-encoded. Deterministic so the store can look tokens up by
// a unique index, non-reversible so a leaked row never yields the secret.
type Fingerprinter struct {
	key []byte
}

func NewFingerprinter(key []byte) *Fingerprinter {
	return &Fingerprinter{key: key}
}

func (f *Fingerprinter) Fingerprint(rawSecret string) string {
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(rawSecret))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares a presented secret against a stored fingerprint in constant
// time.
func (f *Fingerprinter) Equal(rawSecret, storedFingerprint string) bool {
	computed := f.Fingerprint(rawSecret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedFingerprint)) == 1
}

// NewRawSecret returns nBytes of CSPRNG entropy, base64url-encoded without
// padding.
func NewRawSecret(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
