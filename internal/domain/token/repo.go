package token

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, t *RefreshToken) error
	// FindByFingerprint returns the record regardless of revocation or
	// expiry; callers decide between reuse, expiry and success.
	FindByFingerprint(ctx context.Context, fingerprint string) (*RefreshToken, error)
	// RevokeActive flips revoked FALSE -> TRUE for the fingerprint and
	// reports whether this call performed the flip. Concurrent rotations of
	// the same token serialize on this compare-and-set.
	RevokeActive(ctx context.Context, fingerprint string) (bool, error)
	RevokeFamily(ctx context.Context, familyID string) (int64, error)
	RevokeAllForUser(ctx context.Context, userID int64, exceptFamilyID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
