package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Moiraines/health-score-api/internal/domain/authevent"
	"github.com/Moiraines/health-score-api/internal/domain/session"
	"github.com/Moiraines/health-score-api/internal/domain/token"
	"github.com/Moiraines/health-score-api/internal/domain/user"
	"github.com/Moiraines/health-score-api/internal/obs"
	"github.com/Moiraines/health-score-api/internal/repository/postgres"
	"github.com/Moiraines/health-score-api/internal/security"
)

const rawSecretBytes = 32

var (
	mLogins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total", Help: "Login attempts by result.",
	}, []string{"result"})
	mRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refreshes_total", Help: "Refresh attempts by result.",
	}, []string{"result"})
	mReuseDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_reuse_detected_total", Help: "Refresh token reuse events.",
	})
)

type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Transactor mirrors postgres.Transactor so tests can fake the boundary.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service owns every mutation of sessions and refresh tokens. Records are
// plain structs; all transaction boundaries live here.
type Service struct {
	users    user.Repo
	sessions session.Repo
	tokens   token.Repo
	tx       Transactor
	codec    *security.Codec
	fp       *security.Fingerprinter
	events   authevent.Publisher
	log      *zap.Logger
	cfg      Config
}

func NewService(
	users user.Repo,
	sessions session.Repo,
	tokens token.Repo,
	tx Transactor,
	codec *security.Codec,
	fp *security.Fingerprinter,
	events authevent.Publisher,
	log *zap.Logger,
	cfg Config,
) *Service {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		tx:       tx,
		codec:    codec,
		fp:       fp,
		events:   events,
		log:      log,
		cfg:      cfg,
	}
}

// DeviceMeta carries client metadata captured at login.
type DeviceMeta struct {
	UserAgent  string
	IPAddress  string
	DeviceInfo map[string]string
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
	UserID           int64
}

// Login verifies credentials and opens a new session with its own token
// family. The error never reveals whether the identifier exists.
func (s *Service) Login(ctx context.Context, identifier, password string, meta DeviceMeta) (*TokenPair, error) {
	tr := otel.Tracer("auth.service")
	ctx, span := tr.Start(ctx, "auth.login")
	defer span.End()

	u, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, postgres.ErrNotFound) {
			obs.WithTrace(ctx, s.log).Error("user lookup", zap.Error(err))
		}
		mLogins.WithLabelValues("denied").Inc()
		return nil, ErrInvalidCredentials
	}
	if u.Disabled || !security.VerifyPassword(password, u.PasswordHash) {
		mLogins.WithLabelValues("denied").Inc()
		return nil, ErrInvalidCredentials
	}

	now := s.cfg.Now()
	rawSecret, err := security.NewRawSecret(rawSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("mint refresh secret: %w", err)
	}
	fingerprint := s.fp.Fingerprint(rawSecret)

	rec := &token.RefreshToken{
		UserID:      u.ID,
		Fingerprint: fingerprint,
		FamilyID:    uuid.NewString(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.RefreshTTL),
	}
	sess := &session.Session{
		SessionID:          uuid.NewString(),
		UserID:             u.ID,
		UserAgent:          meta.UserAgent,
		IPAddress:          meta.IPAddress,
		DeviceInfo:         meta.DeviceInfo,
		CurrentFingerprint: &fingerprint,
		LastUsedAt:         &now,
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.cfg.AccessTTL),
		RefreshExpiresAt:   now.Add(s.cfg.RefreshTTL),
	}

	// Session and first refresh record are created atomically.
	if err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.tokens.Create(ctx, rec); err != nil {
			return err
		}
		return s.sessions.Create(ctx, sess)
	}); err != nil {
		return nil, fmt.Errorf("persist login: %w", err)
	}

	pair, err := s.issuePair(u.ID, sess.SessionID, rawSecret)
	if err != nil {
		return nil, err
	}
	mLogins.WithLabelValues("ok").Inc()
	obs.WithTrace(ctx, s.log).Info("login",
		zap.Int64("user_id", u.ID),
		zap.String("session_id", sess.SessionID),
	)
	return pair, nil
}

// Refresh exchanges a refresh token for a new access/refresh pair, rotating
// the stored record. Presenting an already-rotated token revokes its whole
// family before the error is returned.
func (s *Service) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	tr := otel.Tracer("auth.service")
	ctx, span := tr.Start(ctx, "auth.refresh")
	defer span.End()

	claims, err := s.codec.Verify(presented, security.KindRefresh)
	if err != nil {
		mRefreshes.WithLabelValues("invalid").Inc()
		if errors.Is(err, security.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	fingerprint := s.fp.Fingerprint(claims.Secret)
	rec, err := s.tokens.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			mRefreshes.WithLabelValues("unknown").Inc()
			return nil, ErrUnknownToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	now := s.cfg.Now()
	if rec.Revoked {
		return nil, s.handleReuse(ctx, rec, "revoked token presented")
	}
	if !rec.ExpiresAt.After(now) {
		mRefreshes.WithLabelValues("expired").Inc()
		return nil, ErrRefreshTokenExpired
	}

	sess, err := s.sessions.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			// A concurrent rotation may have rebound the session between
			// our record lookup and here; re-read the record so a lost
			// race reports reuse, not a revoked session.
			if latest, lerr := s.tokens.FindByFingerprint(ctx, fingerprint); lerr == nil && latest.Revoked {
				return nil, s.handleReuse(ctx, latest, "rebound during lookup")
			}
			// Revocation clears the session's fingerprint, so an orphaned
			// but unrevoked record means the session side is gone.
			mRefreshes.WithLabelValues("session_revoked").Inc()
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess.Revoked {
		mRefreshes.WithLabelValues("session_revoked").Inc()
		return nil, ErrSessionRevoked
	}
	if !sess.RefreshExpiresAt.After(now) {
		mRefreshes.WithLabelValues("expired").Inc()
		return nil, ErrRefreshTokenExpired
	}

	rawSecret, err := security.NewRawSecret(rawSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("mint refresh secret: %w", err)
	}
	newFingerprint := s.fp.Fingerprint(rawSecret)

	var lostRace bool
	txErr := s.tx.WithTx(ctx, func(ctx context.Context) error {
		// The compare-and-set on revoked is the serialization point for
		// concurrent replays of the same token.
		won, err := s.tokens.RevokeActive(ctx, rec.Fingerprint)
		if err != nil {
			return err
		}
		if !won {
			lostRace = true
			return nil
		}
		next := &token.RefreshToken{
			UserID:            rec.UserID,
			Fingerprint:       newFingerprint,
			ParentFingerprint: &rec.Fingerprint,
			FamilyID:          rec.FamilyID,
			CreatedAt:         now,
			ExpiresAt:         now.Add(s.cfg.RefreshTTL),
		}
		if err := s.tokens.Create(ctx, next); err != nil {
			return err
		}
		if err := s.sessions.Rebind(ctx, sess.SessionID, newFingerprint); err != nil {
			return err
		}
		if err := s.sessions.Extend(ctx, sess.SessionID, now.Add(s.cfg.AccessTTL), now.Add(s.cfg.RefreshTTL)); err != nil {
			return err
		}
		return s.sessions.Touch(ctx, sess.SessionID, now)
	})
	if txErr != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", txErr)
	}
	if lostRace {
		return nil, s.handleReuse(ctx, rec, "concurrent rotation lost")
	}

	pair, err := s.issuePair(rec.UserID, sess.SessionID, rawSecret)
	if err != nil {
		return nil, err
	}
	mRefreshes.WithLabelValues("ok").Inc()
	return pair, nil
}

// Authenticate validates an access token. Validity is proven by signature
// and expiry alone; a surviving session record is touched for bookkeeping,
// and an explicitly revoked session is rejected.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*security.Claims, error) {
	claims, err := s.codec.Verify(accessToken, security.KindAccess)
	if err != nil {
		if errors.Is(err, security.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" {
		return claims, nil
	}
	sess, err := s.sessions.GetBySessionID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return claims, nil
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess.Revoked {
		return nil, ErrSessionRevoked
	}
	if err := s.sessions.Touch(ctx, sess.SessionID, s.cfg.Now()); err != nil {
		obs.WithTrace(ctx, s.log).Warn("touch session", zap.Error(err))
	}
	return claims, nil
}

// Logout revokes one session and the refresh token currently bound to it.
// Sibling sessions of the same user stay valid.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	tr := otel.Tracer("auth.service")
	ctx, span := tr.Start(ctx, "auth.logout")
	defer span.End()

	sess, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrSessionRevoked
		}
		return fmt.Errorf("lookup session: %w", err)
	}

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if sess.CurrentFingerprint != nil {
			if _, err := s.tokens.RevokeActive(ctx, *sess.CurrentFingerprint); err != nil {
				return err
			}
		}
		return s.sessions.Revoke(ctx, sess.SessionID)
	})
}

// LogoutAll revokes every session and token family of the user, optionally
// sparing one session (and its family). Returns the number of sessions
// revoked.
func (s *Service) LogoutAll(ctx context.Context, userID int64, exceptSessionID string) (int64, error) {
	tr := otel.Tracer("auth.service")
	ctx, span := tr.Start(ctx, "auth.logout_all", trace.WithAttributes(attribute.Int64("user_id", userID)))
	defer span.End()

	exceptFamily := ""
	if exceptSessionID != "" {
		sess, err := s.sessions.GetBySessionID(ctx, exceptSessionID)
		if err != nil && !errors.Is(err, postgres.ErrNotFound) {
			return 0, fmt.Errorf("lookup spared session: %w", err)
		}
		if err == nil && sess.UserID == userID && sess.CurrentFingerprint != nil {
			rec, err := s.tokens.FindByFingerprint(ctx, *sess.CurrentFingerprint)
			if err != nil && !errors.Is(err, postgres.ErrNotFound) {
				return 0, fmt.Errorf("lookup spared token: %w", err)
			}
			if err == nil {
				exceptFamily = rec.FamilyID
			}
		}
	}

	var revoked int64
	if err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.sessions.RevokeAllForUser(ctx, userID, exceptSessionID)
		if err != nil {
			return err
		}
		revoked = n
		_, err = s.tokens.RevokeAllForUser(ctx, userID, exceptFamily)
		return err
	}); err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}

	s.publish(ctx, authevent.Event{
		Kind:      authevent.KindLogoutAll,
		UserID:    userID,
		SessionID: exceptSessionID,
		Revoked:   revoked,
		At:        s.cfg.Now(),
	})
	obs.WithTrace(ctx, s.log).Info("logout all",
		zap.Int64("user_id", userID),
		zap.Int64("sessions_revoked", revoked),
	)
	return revoked, nil
}

// ListSessions returns the user's active sessions for a devices view.
func (s *Service) ListSessions(ctx context.Context, userID int64) ([]*session.Session, error) {
	return s.sessions.ListActive(ctx, userID)
}

type SweepResult struct {
	Sessions int64
	Tokens   int64
}

// Sweep hard-deletes expired sessions and refresh tokens. Idempotent and
// safe to race with foreground rotations: expiry only ever moves one way.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.cfg.Now()
	var res SweepResult

	n, err := s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("sweep tokens: %w", err)
	}
	res.Tokens = n

	n, err = s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("sweep sessions: %w", err)
	}
	res.Sessions = n
	return res, nil
}

// handleReuse contains the theft response: the whole family dies, the owning
// session (when still bound to this fingerprint) dies with it, and the event
// goes to the security stream. Always returns ErrTokenReuseDetected.
func (s *Service) handleReuse(ctx context.Context, rec *token.RefreshToken, reason string) error {
	mRefreshes.WithLabelValues("reuse").Inc()
	mReuseDetected.Inc()

	var familyRevoked int64
	if err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.tokens.RevokeFamily(ctx, rec.FamilyID)
		if err != nil {
			return err
		}
		familyRevoked = n
		sess, err := s.sessions.GetByFingerprint(ctx, rec.Fingerprint)
		if err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				return nil
			}
			return err
		}
		return s.sessions.Revoke(ctx, sess.SessionID)
	}); err != nil {
		obs.WithTrace(ctx, s.log).Error("revoke family after reuse", zap.Error(err))
	}

	obs.WithTrace(ctx, s.log).Warn("refresh token reuse detected",
		zap.Int64("user_id", rec.UserID),
		zap.String("family_id", rec.FamilyID),
		zap.String("reason", reason),
		zap.Int64("family_revoked", familyRevoked),
	)
	s.publish(ctx, authevent.Event{
		Kind:     authevent.KindTokenReuse,
		UserID:   rec.UserID,
		FamilyID: rec.FamilyID,
		Revoked:  familyRevoked,
		At:       s.cfg.Now(),
	})
	return ErrTokenReuseDetected
}

func (s *Service) issuePair(userID int64, sessionID, rawSecret string) (*TokenPair, error) {
	access, accessExp, err := s.codec.IssueAccess(userID, sessionID, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.codec.IssueRefresh(userID, rawSecret, s.cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		SessionID:        sessionID,
		UserID:           userID,
	}, nil
}

func (s *Service) publish(ctx context.Context, ev authevent.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		obs.WithTrace(ctx, s.log).Error("publish security event",
			zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
