package token

import "time"

// RefreshToken is one persisted refresh credential. The raw secret is never
// stored; Fingerprint is a keyed hash of it and is the only lookup key.
type RefreshToken struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	Fingerprint       string    `json:"-"`
	ParentFingerprint *string   `json:"-"`
	FamilyID          string    `json:"family_id"`
	Revoked           bool      `json:"revoked"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Active reports whether the token can still be exchanged at the given time.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}
