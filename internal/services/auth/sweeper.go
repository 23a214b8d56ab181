package auth

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Moiraines/health-score-api/internal/obs"
)

// Sweeper periodically deletes expired sessions and refresh tokens. It runs
// outside the request path and stops when its context is cancelled.
type Sweeper struct {
	log  *zap.Logger
	svc  *Service
	tick time.Duration

	mSessions prometheus.Counter
	mTokens   prometheus.Counter
	mErr      prometheus.Counter
	mDur      prometheus.Histogram
}

func NewSweeper(log *zap.Logger, svc *Service, tick time.Duration) *Sweeper {
	if tick <= 0 {
		tick = time.Hour
	}
	return &Sweeper{
		log:  log,
		svc:  svc,
		tick: tick,
		mSessions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auth_sweep_sessions_deleted_total", Help: "Expired sessions deleted.",
		}),
		mTokens: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auth_sweep_tokens_deleted_total", Help: "Expired refresh tokens deleted.",
		}),
		mErr: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auth_sweep_errors_total", Help: "Errors in sweep ticks.",
		}),
		mDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "auth_sweep_duration_seconds", Help: "Sweep tick duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()

	tr := otel.Tracer("auth.sweeper")
	ctx, span := tr.Start(ctx, "auth.sweep")
	defer span.End()

	res, err := s.svc.Sweep(ctx)
	if err != nil {
		span.RecordError(err)
		s.mErr.Inc()
		obs.WithTrace(ctx, s.log).Warn("sweep error", zap.Error(err))
		return
	}
	span.SetAttributes(
		attribute.Int64("sweep.sessions", res.Sessions),
		attribute.Int64("sweep.tokens", res.Tokens),
	)
	if res.Sessions > 0 || res.Tokens > 0 {
		s.mSessions.Add(float64(res.Sessions))
		s.mTokens.Add(float64(res.Tokens))
		obs.WithTrace(ctx, s.log).Debug("swept expired records",
			zap.Int64("sessions", res.Sessions),
			zap.Int64("tokens", res.Tokens),
		)
	}
	s.mDur.Observe(time.Since(start).Seconds())
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}
