package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccessRoundTrip(t *testing.T) {
	c := NewCodec([]byte("unit-test-secret"), "health-score-api")

	signed, exp, err := c.IssueAccess(42, "sess-abc", 30*time.Minute)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(30*time.Minute), exp, 5*time.Second)

	claims, err := c.Verify(signed, KindAccess)
	require.NoError(t, err)

	uid, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, int64(42), uid)
	require.Equal(t, "sess-abc", claims.SessionID)
	require.Equal(t, KindAccess, claims.Kind)
	require.NotEmpty(t, claims.Nonce)
}

func TestRefreshCarriesSecret(t *testing.T) {
	c := NewCodec([]byte("unit-test-secret"), "health-score-api")

	raw, err := NewRawSecret(32)
	require.NoError(t, err)

	signed, _, err := c.IssueRefresh(7, raw, 7*24*time.Hour)
	require.NoError(t, err)

	claims, err := c.Verify(signed, KindRefresh)
	require.NoError(t, err)
	require.Equal(t, raw, claims.Secret)
}

func TestVerifyWrongKind(t *testing.T) {
	c := NewCodec([]byte("unit-test-secret"), "health-score-api")

	access, _, err := c.IssueAccess(1, "sess", time.Minute)
	require.NoError(t, err)

	_, err = c.Verify(access, KindRefresh)
	require.ErrorIs(t, err, ErrWrongKind)

	refresh, _, err := c.IssueRefresh(1, "raw", time.Minute)
	require.NoError(t, err)

	_, err = c.Verify(refresh, KindAccess)
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestVerifyExpired(t *testing.T) {
	c := NewCodec([]byte("unit-test-secret"), "health-score-api")

	signed, _, err := c.IssueAccess(1, "sess", -time.Minute)
	require.NoError(t, err)

	_, err = c.Verify(signed, KindAccess)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerifyForeignSecret(t *testing.T) {
	issuer := NewCodec([]byte("secret-a"), "health-score-api")
	verifier := NewCodec([]byte("secret-b"), "health-score-api")

	signed, _, err := issuer.IssueAccess(1, "sess", time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(signed, KindAccess)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWrongIssuer(t *testing.T) {
	a := NewCodec([]byte("shared"), "service-a")
	b := NewCodec([]byte("shared"), "service-b")

	signed, _, err := a.IssueAccess(1, "sess", time.Minute)
	require.NoError(t, err)

	_, err = b.Verify(signed, KindAccess)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyGarbage(t *testing.T) {
	c := NewCodec([]byte("unit-test-secret"), "health-score-api")

	_, err := c.Verify("not.a.jwt", KindAccess)
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = c.Verify("", KindAccess)
	require.ErrorIs(t, err, ErrInvalidSignature)
}
