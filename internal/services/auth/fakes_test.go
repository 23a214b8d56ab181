package auth

import (
	"context"
	"sync"
	"time"

	"github.com/Moiraines/health-score-api/internal/domain/authevent"
	"github.com/Moiraines/health-score-api/internal/domain/session"
	"github.com/Moiraines/health-score-api/internal/domain/token"
	"github.com/Moiraines/health-score-api/internal/domain/user"
	"github.com/Moiraines/health-score-api/internal/repository/postgres"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*user.User // keyed by username and email
}

func newFakeUsers() *fakeUsers { return &fakeUsers{users: map[string]*user.User{}} }

func (f *fakeUsers) add(u *user.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.Username] = u
	f.users[u.Email] = u
}

func (f *fakeUsers) Create(_ context.Context, u *user.User) error {
	f.add(u)
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeUsers) GetByIdentifier(_ context.Context, identifier string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[identifier]; ok {
		return u, nil
	}
	return nil, postgres.ErrNotFound
}

type fakeTokens struct {
	mu     sync.Mutex
	byFP   map[string]*token.RefreshToken
	nextID int64
}

func newFakeTokens() *fakeTokens { return &fakeTokens{byFP: map[string]*token.RefreshToken{}} }

func (f *fakeTokens) Create(_ context.Context, t *token.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	cp := *t
	f.byFP[t.Fingerprint] = &cp
	return nil
}

func (f *fakeTokens) FindByFingerprint(_ context.Context, fp string) (*token.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byFP[fp]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTokens) RevokeActive(_ context.Context, fp string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byFP[fp]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (f *fakeTokens) RevokeFamily(_ context.Context, familyID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.byFP {
		if t.FamilyID == familyID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID int64, exceptFamilyID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.byFP {
		if t.UserID == userID && !t.Revoked && (exceptFamilyID == "" || t.FamilyID != exceptFamilyID) {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for fp, t := range f.byFP {
		if !t.ExpiresAt.After(now) {
			delete(f.byFP, fp)
			n++
		}
	}
	return n, nil
}

type fakeSessions struct {
	mu     sync.Mutex
	bySID  map[string]*session.Session
	nextID int64
}

func newFakeSessions() *fakeSessions { return &fakeSessions{bySID: map[string]*session.Session{}} }

func (f *fakeSessions) Create(_ context.Context, s *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	cp := *s
	f.bySID[s.SessionID] = &cp
	return nil
}

func (f *fakeSessions) GetBySessionID(_ context.Context, sessionID string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.bySID[sessionID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) GetByFingerprint(_ context.Context, fp string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.bySID {
		if s.CurrentFingerprint != nil && *s.CurrentFingerprint == fp {
			cp := *s
			return &cp, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeSessions) Touch(_ context.Context, sessionID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.bySID[sessionID]; ok {
		t := at
		s.LastUsedAt = &t
	}
	return nil
}

func (f *fakeSessions) Rebind(_ context.Context, sessionID, fp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.bySID[sessionID]
	if !ok {
		return postgres.ErrNotFound
	}
	s.CurrentFingerprint = &fp
	return nil
}

func (f *fakeSessions) Extend(_ context.Context, sessionID string, expiresAt, refreshExpiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.bySID[sessionID]
	if !ok {
		return postgres.ErrNotFound
	}
	s.ExpiresAt = expiresAt
	s.RefreshExpiresAt = refreshExpiresAt
	return nil
}

func (f *fakeSessions) Revoke(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.bySID[sessionID]
	if !ok {
		return postgres.ErrNotFound
	}
	s.Revoked = true
	s.CurrentFingerprint = nil
	return nil
}

func (f *fakeSessions) RevokeAllForUser(_ context.Context, userID int64, exceptSessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.bySID {
		if s.UserID == userID && !s.Revoked && (exceptSessionID == "" || s.SessionID != exceptSessionID) {
			s.Revoked = true
			s.CurrentFingerprint = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) ListActive(_ context.Context, userID int64) ([]*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var out []*session.Session
	for _, s := range f.bySID {
		if s.UserID == userID && s.Active(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for sid, s := range f.bySID {
		if !s.ExpiresAt.After(now) && !s.RefreshExpiresAt.After(now) {
			delete(f.bySID, sid)
			n++
		}
	}
	return n, nil
}

// fakeTx just runs the function; the fakes mutate under their own locks.
type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type captureEvents struct {
	mu     sync.Mutex
	events []authevent.Event
}

func (c *captureEvents) Publish(_ context.Context, ev authevent.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureEvents) byKind(kind authevent.Kind) []authevent.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []authevent.Event
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
