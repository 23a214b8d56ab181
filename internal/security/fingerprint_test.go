package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	f := NewFingerprinter([]byte("fp-key"))

	a := f.Fingerprint("some-raw-secret")
	b := f.Fingerprint("some-raw-secret")
	require.Equal(t, a, b)
	require.Len(t, a, 64) // hex sha256
}

func TestFingerprintKeyed(t *testing.T) {
	a := NewFingerprinter([]byte("key-a")).Fingerprint("secret")
	b := NewFingerprinter([]byte("key-b")).Fingerprint("secret")
	require.NotEqual(t, a, b)
}

func TestFingerprintEqual(t *testing.T) {
	f := NewFingerprinter([]byte("fp-key"))

	stored := f.Fingerprint("secret")
	require.True(t, f.Equal("secret", stored))
	require.False(t, f.Equal("other", stored))
}

func TestNewRawSecretUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		s, err := NewRawSecret(32)
		require.NoError(t, err)
		require.NotEmpty(t, s)
		require.False(t, seen[s], "raw secret repeated")
		seen[s] = true
	}
}

func TestHashPasswordRoundTrip(t *testing.T) {
	digest, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, VerifyPassword("correct horse battery staple", digest))
	require.False(t, VerifyPassword("wrong password", digest))
}
