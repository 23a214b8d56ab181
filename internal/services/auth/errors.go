package auth

import "errors"

// All lifecycle errors are terminal for the calling request: retrying cannot
// change the outcome. Callers surface every one of them as unauthenticated.
var (
	ErrInvalidCredentials = errors.New("invalid identifier or password")

	// ErrInvalidToken covers bad signatures and wrong-kind presentations.
	ErrInvalidToken = errors.New("token invalid")

	// ErrTokenExpired means the signed envelope itself is past its exp claim.
	ErrTokenExpired = errors.New("token expired")

	// ErrUnknownToken means the fingerprint matched no stored record.
	ErrUnknownToken = errors.New("unknown refresh token")

	// ErrRefreshTokenExpired means the record exists but is past expiry.
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrTokenReuseDetected means an already-rotated token was presented
	// again. Returning it has a side effect: the whole token family is
	// revoked before the error surfaces.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")

	ErrSessionRevoked = errors.New("session revoked")
)
