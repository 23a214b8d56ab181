package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Moiraines/health-score-api/internal/domain/session"
)

var _ session.Repo = (*SessionRepo)(nil)

type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

const (
	qSessInsert = `
INSERT INTO user_sessions
    (session_id, user_id, user_agent, ip_address, device_info, current_fingerprint,
     revoked, last_used_at, created_at, expires_at, refresh_expires_at)
VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $9, $10)
RETURNING id;`

	qSessColumns = `
id, session_id, user_id, user_agent, ip_address, device_info, current_fingerprint,
revoked, last_used_at, created_at, expires_at, refresh_expires_at`

	qSessBySessionID = `
SELECT` + qSessColumns + `
FROM user_sessions
WHERE session_id = $1
LIMIT 1;`

	qSessByFingerprint = `
SELECT` + qSessColumns + `
FROM user_sessions
WHERE current_fingerprint = $1
LIMIT 1;`

	qSessTouch = `
UPDATE user_sessions SET last_used_at = $2 WHERE session_id = $1;`

	qSessRebind = `
UPDATE user_sessions SET current_fingerprint = $2 WHERE session_id = $1;`

	qSessExtend = `
UPDATE user_sessions SET expires_at = $2, refresh_expires_at = $3 WHERE session_id = $1;`

	// Revocation clears the fingerprint so a revoked session never points at
	// a live token.
	qSessRevoke = `
UPDATE user_sessions SET revoked = TRUE, current_fingerprint = NULL
WHERE session_id = $1;`

	qSessRevokeAllForUser = `
UPDATE user_sessions SET revoked = TRUE, current_fingerprint = NULL
WHERE user_id = $1 AND revoked = FALSE AND ($2 = '' OR session_id <> $2);`

	qSessListActive = `
SELECT` + qSessColumns + `
FROM user_sessions
WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
ORDER BY last_used_at DESC NULLS LAST;`

	qSessDeleteExpired = `
DELETE FROM user_sessions
WHERE expires_at <= $1 AND refresh_expires_at <= $1;`
)

func (r *SessionRepo) Create(ctx context.Context, s *session.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	device, err := marshalDeviceInfo(s.DeviceInfo)
	if err != nil {
		return err
	}
	if err := r.db.querier(ctx).QueryRow(ctx, qSessInsert,
		s.SessionID, s.UserID, nullIfEmpty(s.UserAgent), nullIfEmpty(s.IPAddress), device,
		s.CurrentFingerprint, s.LastUsedAt, s.CreatedAt, s.ExpiresAt, s.RefreshExpiresAt,
	).Scan(&s.ID); err != nil {
		return fmt.Errorf("session insert: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*session.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanSession(r.db.querier(ctx).QueryRow(ctx, qSessBySessionID, sessionID))
}

func (r *SessionRepo) GetByFingerprint(ctx context.Context, fingerprint string) (*session.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanSession(r.db.querier(ctx).QueryRow(ctx, qSessByFingerprint, fingerprint))
}

func (r *SessionRepo) Touch(ctx context.Context, sessionID string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.querier(ctx).Exec(ctx, qSessTouch, sessionID, at); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Rebind(ctx context.Context, sessionID, fingerprint string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qSessRebind, sessionID, fingerprint)
	if err != nil {
		return fmt.Errorf("rebind session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SessionRepo) Extend(ctx context.Context, sessionID string, expiresAt, refreshExpiresAt time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qSessExtend, sessionID, expiresAt, refreshExpiresAt)
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SessionRepo) Revoke(ctx context.Context, sessionID string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qSessRevoke, sessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID int64, exceptSessionID string) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qSessRevokeAllForUser, userID, exceptSessionID)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepo) ListActive(ctx context.Context, userID int64) ([]*session.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.querier(ctx).Query(ctx, qSessListActive, userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qSessDeleteExpired, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		s         session.Session
		userAgent *string
		ipAddress *string
		device    []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.SessionID,
		&s.UserID,
		&userAgent,
		&ipAddress,
		&device,
		&s.CurrentFingerprint,
		&s.Revoked,
		&s.LastUsedAt,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.RefreshExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if userAgent != nil {
		s.UserAgent = *userAgent
	}
	if ipAddress != nil {
		s.IPAddress = *ipAddress
	}
	if len(device) > 0 {
		if err := json.Unmarshal(device, &s.DeviceInfo); err != nil {
			return nil, fmt.Errorf("decode device info: %w", err)
		}
	}
	return &s, nil
}

func marshalDeviceInfo(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode device info: %w", err)
	}
	return b, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
