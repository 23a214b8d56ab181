package authevent

import (
	"context"
	"time"
)

type Kind string

const (
	// KindTokenReuse marks presentation of an already-rotated refresh token;
	// the whole family has been revoked by the time the event is emitted.
	KindTokenReuse Kind = "token_reuse_detected"
	KindLogoutAll  Kind = "logout_all"
)

// Event is one security-relevant lifecycle occurrence.
type Event struct {
	Kind      Kind      `json:"kind"`
	UserID    int64     `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	FamilyID  string    `json:"family_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Revoked   int64     `json:"revoked,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events best-effort; auth operations never fail on a
// publish error.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
