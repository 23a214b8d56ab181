//go:build integration

package integration

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pg "github.com/Moiraines/health-score-api/internal/repository/postgres"
	"github.com/Moiraines/health-score-api/internal/security"
	"github.com/Moiraines/health-score-api/internal/services/auth"
)

func newAuthService(t *testing.T, cfg Cfg) (*auth.Service, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pg.NewDB(ctx, pg.Config{DSN: cfg.DBDSN, MaxConns: 4, QueryTimeout: 5 * time.Second})
	require.NoError(t, err)

	log := zap.NewNop()
	svc := auth.NewService(
		pg.NewUserRepo(db),
		pg.NewSessionRepo(db),
		pg.NewRefreshTokenRepo(db),
		pg.NewTransactor(db, log),
		security.NewCodec([]byte("it-jwt-secret-0123456789abcdef"), "authd-it"),
		security.NewFingerprinter([]byte("it-fp-secret-0123456789abcdef")),
		nil,
		log,
		auth.Config{AccessTTL: time.Minute, RefreshTTL: time.Hour},
	)
	return svc, db.Close
}

func TestAuthFlow_LoginRefreshLogout(t *testing.T) {
	cfg := LoadCfg()
	u, err := url.Parse(cfg.DBDSN)
	if err == nil {
		WaitTCP(t, "postgres", u.Host, 30*time.Second)
	}

	sqlDB := DBOpen(t, cfg.DBDSN)
	defer sqlDB.Close()
	MigrateUp(t, sqlDB, cfg.MigrationsDir)

	suffix := RandSuffix()
	username := "it-user-" + suffix
	password := "it-secret-" + suffix
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	userID := SeedUser(t, sqlDB, username, username+"@example.com", hash)
	defer DeleteUser(t, sqlDB, userID)

	svc, closeSvc := newAuthService(t, cfg)
	defer closeSvc()
	ctx := context.Background()

	_, err = svc.Login(ctx, username, "wrong-"+password, auth.DeviceMeta{})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	pair, err := svc.Login(ctx, username, password, auth.DeviceMeta{
		UserAgent: "it-agent", IPAddress: "10.0.0.1",
		DeviceInfo: map[string]string{"os": "linux"},
	})
	require.NoError(t, err)
	require.Equal(t, userID, pair.UserID)

	claims, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, pair.SessionID, claims.SessionID)

	// Rotate twice, then replay the middle token and expect family revocation.
	second, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	third, err := svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, auth.ErrTokenReuseDetected)

	_, err = svc.Refresh(ctx, third.RefreshToken)
	require.Error(t, err)
	require.True(t,
		errors.Is(err, auth.ErrTokenReuseDetected) || errors.Is(err, auth.ErrSessionRevoked),
		"tip must be dead after reuse, got %v", err)

	n := CountRows(t, sqlDB,
		`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1 AND revoked = FALSE`, userID)
	require.Zero(t, n, "no live tokens may survive reuse detection")
}

func TestAuthFlow_LogoutAllAndSweep(t *testing.T) {
	cfg := LoadCfg()
	sqlDB := DBOpen(t, cfg.DBDSN)
	defer sqlDB.Close()
	MigrateUp(t, sqlDB, cfg.MigrationsDir)

	suffix := RandSuffix()
	username := "it-user-" + suffix
	password := "it-secret-" + suffix
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	userID := SeedUser(t, sqlDB, username, username+"@example.com", hash)
	defer DeleteUser(t, sqlDB, userID)

	svc, closeSvc := newAuthService(t, cfg)
	defer closeSvc()
	ctx := context.Background()

	laptop, err := svc.Login(ctx, username, password, auth.DeviceMeta{UserAgent: "laptop"})
	require.NoError(t, err)
	phone, err := svc.Login(ctx, username, password, auth.DeviceMeta{UserAgent: "phone"})
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	revoked, err := svc.LogoutAll(ctx, userID, laptop.SessionID)
	require.NoError(t, err)
	require.EqualValues(t, 1, revoked)

	_, err = svc.Refresh(ctx, phone.RefreshToken)
	require.Error(t, err)

	kept, err := svc.Refresh(ctx, laptop.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, kept.SessionID))
	_, err = svc.Refresh(ctx, kept.RefreshToken)
	require.Error(t, err)

	_, err = svc.Sweep(ctx)
	require.NoError(t, err)
}
