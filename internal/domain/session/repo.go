package session

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, s *Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*Session, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*Session, error)
	// Touch bumps last_used_at.
	Touch(ctx context.Context, sessionID string, at time.Time) error
	// Rebind points the session at a new refresh fingerprint after a
	// rotation. Must run in the same transaction as the token rotation.
	Rebind(ctx context.Context, sessionID, fingerprint string) error
	// Extend pushes the session's expiry windows forward after a rotation.
	Extend(ctx context.Context, sessionID string, expiresAt, refreshExpiresAt time.Time) error
	Revoke(ctx context.Context, sessionID string) error
	RevokeAllForUser(ctx context.Context, userID int64, exceptSessionID string) (int64, error)
	ListActive(ctx context.Context, userID int64) ([]*Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
