package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Moiraines/health-score-api/internal/domain/token"
)

var _ token.Repo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct {
	db *DB
}

func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

const (
	qRTInsert = `
INSERT INTO refresh_tokens (user_id, fingerprint, parent_fingerprint, family_id, revoked, created_at, expires_at)
VALUES ($1, $2, $3, $4, FALSE, $5, $6)
RETURNING id;`

	qRTByFingerprint = `
SELECT id, user_id, fingerprint, parent_fingerprint, family_id, revoked, created_at, expires_at
FROM refresh_tokens
WHERE fingerprint = $1
LIMIT 1;`

	// Compare-and-set: only one caller ever observes rows-affected = 1.
	qRTRevokeActive = `
UPDATE refresh_tokens SET revoked = TRUE
WHERE fingerprint = $1 AND revoked = FALSE;`

	qRTRevokeFamily = `
UPDATE refresh_tokens SET revoked = TRUE
WHERE family_id = $1 AND revoked = FALSE;`

	qRTRevokeAllForUser = `
UPDATE refresh_tokens SET revoked = TRUE
WHERE user_id = $1 AND revoked = FALSE AND ($2 = '' OR family_id <> $2);`

	qRTDeleteExpired = `
DELETE FROM refresh_tokens WHERE expires_at <= $1;`
)

func (r *RefreshTokenRepo) Create(ctx context.Context, t *token.RefreshToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.querier(ctx).QueryRow(ctx, qRTInsert,
		t.UserID, t.Fingerprint, t.ParentFingerprint, t.FamilyID, t.CreatedAt, t.ExpiresAt,
	).Scan(&t.ID); err != nil {
		return fmt.Errorf("refresh token insert: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*token.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t token.RefreshToken
	if err := r.db.querier(ctx).QueryRow(ctx, qRTByFingerprint, fingerprint).Scan(
		&t.ID,
		&t.UserID,
		&t.Fingerprint,
		&t.ParentFingerprint,
		&t.FamilyID,
		&t.Revoked,
		&t.CreatedAt,
		&t.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &t, nil
}

func (r *RefreshTokenRepo) RevokeActive(ctx context.Context, fingerprint string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qRTRevokeActive, fingerprint)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qRTRevokeFamily, familyID)
	if err != nil {
		return 0, fmt.Errorf("revoke token family: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID int64, exceptFamilyID string) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qRTRevokeAllForUser, userID, exceptFamilyID)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qRTDeleteExpired, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
