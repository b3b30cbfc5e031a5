package channels

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/reanhealth/botgateway/internal/messaging"
)

// SendLimiter throttles outbound provider calls per (tenant, channel) so
// one busy tenant cannot exhaust a provider's API budget for the rest.
type SendLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSendLimiter creates a limiter allowing perSecond sends with the given
// burst per key.
func NewSendLimiter(perSecond float64, burst int) *SendLimiter {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 1
	}
	return &SendLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a send slot for the tenant/channel pair is available or
// the context is cancelled.
func (l *SendLimiter) Wait(ctx context.Context, tenantID string, kind messaging.ChannelKind) error {
	key := tenantID + ":" + string(kind)
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Wait(ctx)
}
