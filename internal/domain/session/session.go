package session

import "time"

// Session is one logical client session (one device or browser). It is
// bound to at most one active refresh token via CurrentFingerprint.
type Session struct {
	ID                 int64             `json:"id"`
	SessionID          string            `json:"session_id"`
	UserID             int64             `json:"user_id"`
	UserAgent          string            `json:"user_agent,omitempty"`
	IPAddress          string            `json:"ip_address,omitempty"`
	DeviceInfo         map[string]string `json:"device_info,omitempty"`
	CurrentFingerprint *string           `json:"-"`
	Revoked            bool              `json:"revoked"`
	LastUsedAt         *time.Time        `json:"last_used_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	ExpiresAt          time.Time         `json:"expires_at"`
	RefreshExpiresAt   time.Time         `json:"refresh_expires_at"`
}

// Active reports whether the session accepts authenticated requests.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(now)
}

// CanRefresh reports whether the session may still exchange refresh tokens.
func (s *Session) CanRefresh(now time.Time) bool {
	return !s.Revoked && s.CurrentFingerprint != nil && s.RefreshExpiresAt.After(now)
}
