package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrWrongKind        = errors.New("wrong token kind")
)

// Kind discriminates access from refresh tokens inside the signed claims, so
// an access token can never be presented where a refresh token is required.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the signed payload for both token kinds. For refresh tokens the
// raw rotation secret travels inside the signed envelope (claim "tkn"); the
// store only ever sees its fingerprint.
type Claims struct {
	jwt.RegisteredClaims
	Kind      Kind   `json:"kind"`
	SessionID string `json:"sid,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	Secret    string `json:"tkn,omitempty"`
}

// UserID parses the subject claim back into a user id.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Codec signs and verifies expiring claims with a symmetric HS256 secret.
// It holds no state beyond the secret and is safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
}

func NewCodec(secret []byte, issuer string) *Codec {
	return &Codec{secret: secret, issuer: issuer}
}

// IssueAccess signs a short-lived access token bound to the session.
func (c *Codec) IssueAccess(userID int64, sessionID string, ttl time.Duration) (string, time.Time, error) {
	nonce, err := NewRawSecret(8)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("access nonce: %w", err)
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Kind:      KindAccess,
		SessionID: sessionID,
		Nonce:     nonce,
	}
	signed, err := c.sign(claims)
	return signed, exp, err
}

// IssueRefresh wraps the raw rotation secret in a signed, expiring envelope.
func (c *Codec) IssueRefresh(userID int64, rawSecret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Kind:   KindRefresh,
		Secret: rawSecret,
	}
	signed, err := c.sign(claims)
	return signed, exp, err
}

func (c *Codec) sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry, issuer and kind. A revoked but unexpired
// token still verifies here; revocation is enforced against the store.
func (c *Codec) Verify(tokenString string, kind Kind) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return c.secret, nil
	}, jwt.WithIssuer(c.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidSignature
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSignature
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	return claims, nil
}
