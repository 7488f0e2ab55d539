package resilience

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limiters holds one token bucket per provider. Safe for concurrent use;
// buckets are shared process-wide.
type Limiters struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	perSec  float64
	burst   int
}

// NewLimiters creates a registry whose buckets refill at perSec tokens per
// second with the given burst. perSec <= 0 disables limiting.
func NewLimiters(perSec float64, burst int) *Limiters {
	if burst <= 0 {
		burst = 1
	}
	return &Limiters{buckets: make(map[string]*rate.Limiter), perSec: perSec, burst: burst}
}

// Set overrides the bucket for one provider.
func (l *Limiters) Set(name string, perSec float64, burst int) {
	if burst <= 0 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[name] = newBucket(perSec, burst)
}

// For returns the bucket for name, creating it with the registry defaults.
func (l *Limiters) For(name string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[name]
	if !ok {
		b = newBucket(l.perSec, l.burst)
		l.buckets[name] = b
	}
	return b
}

// Wait blocks until name's bucket grants a token or ctx ends.
func (l *Limiters) Wait(ctx context.Context, name string) error {
	if err := l.For(name).Wait(ctx); err != nil {
		return eris.Wrapf(err, "rate limit %s", name)
	}
	return nil
}

func newBucket(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}
