package kafka

import (
	"context"
	"strconv"

	"github.com/Moiraines/health-score-api/internal/domain/authevent"
	"github.com/Moiraines/health-score-api/internal/obs/retry"
)

var _ authevent.Publisher = (*SecurityEvents)(nil)

// SecurityEvents publishes auth security events keyed by user id, so all
// events for one account land on the same partition in order.
type SecurityEvents struct {
	p   *Producer
	pol retry.Policy
}

func NewSecurityEvents(p *Producer, pol retry.Policy) *SecurityEvents {
	return &SecurityEvents{p: p, pol: pol}
}

func (s *SecurityEvents) Publish(ctx context.Context, ev authevent.Event) error {
	key := []byte(strconv.FormatInt(ev.UserID, 10))
	return retry.Do(ctx, func() error {
		return s.p.PublishJSON(ctx, key, ev)
	}, s.pol)
}
