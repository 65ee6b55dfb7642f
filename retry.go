package nosqldb

import (
	"math/rand"
	"time"

	"progressdb/nosqldb/pkg/nosqlerr"
)

// RetryHandler decides whether and how long to wait before re-sending a
// failed request (spec §4.6 retry loop step 4: "consult RetryHandler").
type RetryHandler interface {
	ShouldRetry(req *Request, err error, attempt int) bool
	Delay(req *Request, err error, attempt int) time.Duration
}

// DefaultRetryHandler is exponential backoff with full jitter, capped at
// 8 seconds, grounded on the general shape of the teacher's retention
// scheduler backoff (internal/retention) rather than any literal code
// reuse — that package retries on a cron cadence, this on an attempt
// counter, but both avoid a thundering herd via jitter.
type DefaultRetryHandler struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

const (
	defaultBaseDelay = 20 * time.Millisecond
	defaultMaxDelay  = 8 * time.Second
	maxAttempts      = 10
)

func (h DefaultRetryHandler) ShouldRetry(req *Request, err error, attempt int) bool {
	if attempt >= maxAttempts {
		return false
	}
	var nerr *nosqlerr.Error
	if !nosqlerr.As(err, &nerr) {
		return false
	}
	return nerr.Retryable
}

func (h DefaultRetryHandler) Delay(req *Request, err error, attempt int) time.Duration {
	base := h.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	max := h.MaxDelay
	if max <= 0 {
		max = defaultMaxDelay
	}
	d := base << uint(attempt)
	if d <= 0 || d > max {
		d = max
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}
