// Package ratelimit implements the per-table rate-limiter control loop of
// spec §4.7: a leaky-bucket limiter per table/direction, a background
// refresh loop that keeps limits in sync with the server's provisioned
// throughput, and the init/start/finish/error hooks the request pipeline
// calls at each stage of an attempt.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"progressdb/nosqldb/pkg/nosqlerr"
)

// Limiter is the external strategy interface spec §4.7 names
// ("SimpleRateLimiter contract (external)"). The driver ships one
// implementation (SimpleRateLimiter) but callers may supply their own —
// this is the one pluggable-strategy surface spec §1 allows outside the
// core ("no support for loading arbitrary plugins beyond a rate-limiter
// strategy object").
type Limiter interface {
	// SetLimit reconfigures the limiter's steady-state rate, units/second.
	SetLimit(unitsPerSecond float64)
	// ConsumeUnits blocks (cooperatively, honoring ctx) until units have
	// been accounted for, returning the delay actually incurred. A
	// reservation consumption (already performed the work, charging after
	// the fact) never blocks past what's already happened; a
	// non-reservation consumption may block up to remaining.
	ConsumeUnits(ctx context.Context, units float64, remaining time.Duration, reservation bool) (time.Duration, error)
	// OnThrottle is notified when the server rejects work for this
	// direction so the limiter can back off even if its own accounting
	// didn't predict the rejection.
	OnThrottle()
}

// SimpleRateLimiter is the default Limiter: a token-bucket over
// golang.org/x/time/rate, with an optional burst window extending how
// much unused capacity may accumulate (spec §4.7 "optional burst window
// in seconds").
type SimpleRateLimiter struct {
	limiter     *rate.Limiter
	burstWindow time.Duration
}

// NewSimpleRateLimiter builds a limiter configured for unitsPerSecond,
// with burst capacity sized by burstSeconds (0 means a 1-second burst,
// i.e. no extra burst beyond the steady rate).
func NewSimpleRateLimiter(unitsPerSecond float64, burstSeconds float64) *SimpleRateLimiter {
	if burstSeconds <= 0 {
		burstSeconds = 1
	}
	burst := int(unitsPerSecond*burstSeconds) + 1
	return &SimpleRateLimiter{
		limiter:     rate.NewLimiter(rate.Limit(unitsPerSecond), burst),
		burstWindow: time.Duration(burstSeconds * float64(time.Second)),
	}
}

func (l *SimpleRateLimiter) SetLimit(unitsPerSecond float64) {
	burstSeconds := l.burstWindow.Seconds()
	if burstSeconds <= 0 {
		burstSeconds = 1
	}
	burst := int(unitsPerSecond*burstSeconds) + 1
	l.limiter.SetLimit(rate.Limit(unitsPerSecond))
	l.limiter.SetBurst(burst)
}

// ConsumeUnits implements Limiter. units <= 0 is a no-op poll used by
// startRequest's pre-flight check (spec §4.7 "consumeUnits(0, ...)").
func (l *SimpleRateLimiter) ConsumeUnits(ctx context.Context, units float64, remaining time.Duration, reservation bool) (time.Duration, error) {
	if units <= 0 {
		return 0, nil
	}
	n := int(units + 0.5)
	if n <= 0 {
		n = 1
	}
	start := time.Now()
	if reservation {
		// The work already happened; charge for it without blocking the
		// caller, but still track the delay the reservation itself
		// reports so consumedCapacity can surface it.
		r := l.limiter.ReserveN(time.Now(), n)
		if !r.OK() {
			return 0, nil
		}
		return r.Delay(), nil
	}
	wctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()
	if err := l.limiter.WaitN(wctx, n); err != nil {
		return time.Since(start), nosqlerr.Timeout(0, err)
	}
	return time.Since(start), nil
}

// OnThrottle implements Limiter. The token bucket already reflects reality
// once the server pushes back; nothing extra to do beyond what onError in
// Manager does (flip the doesReads/doesWrites hint).
func (l *SimpleRateLimiter) OnThrottle() {}
