package provider

import (
	"context"
	"time"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/resilience"
)

// Guard runs adapter lookups under a per-provider timeout, token bucket and
// circuit breaker. Safe for concurrent use.
type Guard struct {
	chain    *Chain
	limiters *resilience.Limiters
	breakers *resilience.Breakers
}

// NewGuard builds a Guard whose buckets follow the chain's per-link rates.
func NewGuard(chain *Chain, breakerCfg resilience.BreakerConfig) *Guard {
	limiters := resilience.NewLimiters(chain.Defaults.RatePerSec, chain.Defaults.Burst)
	for _, l := range chain.Links {
		limiters.Set(l.Name, l.RatePerSec, l.Burst)
	}
	return &Guard{
		chain:    chain,
		limiters: limiters,
		breakers: resilience.NewBreakers(breakerCfg),
	}
}

// Lookup calls a.Lookup with the guards for a.Name() applied. Any failure,
// including an open breaker or a timeout while waiting on the bucket, is a
// provider fault. Usage gathered before a failure is still returned.
func (g *Guard) Lookup(ctx context.Context, a Adapter, domain, name string) (*Result, error) {
	op := "provider: " + a.Name()
	timeout := g.chain.Link(a.Name()).Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.limiters.Wait(callCtx, a.Name()); err != nil {
		return nil, fault.Provider(op, err)
	}

	res, err := resilience.Call(callCtx, g.breakers.For(a.Name()), func(ctx context.Context) (*Result, error) {
		return a.Lookup(ctx, domain, name)
	})
	if err != nil {
		return res, fault.Provider(op, err)
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}

// Breakers exposes the breaker registry for status reporting.
func (g *Guard) Breakers() *resilience.Breakers {
	return g.breakers
}
