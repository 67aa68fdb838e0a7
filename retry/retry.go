package retry

import (
	"context"
	"time"
)

const (
	// DefaultInitialDelay is the pause before the first retry
	DefaultInitialDelay = 10 * time.Millisecond
	// DefaultMaxDelay caps the pause between attempts
	DefaultMaxDelay = time.Second
	// DefaultTimeout is the default retry budget
	DefaultTimeout = 10 * time.Second
)

// Func is one attempt of a retried operation.
type Func func(ctx context.Context) error

// Policy retries a failed attempt with exponential backoff: the pause starts
// at InitialDelay, doubles after every retry and is capped at MaxDelay.
// No retry starts once Timeout has elapsed since the first attempt began.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Timeout      time.Duration

	// Retryable classifies errors; nil retries every error.
	Retryable func(err error) bool
	// OnRetry is called before each pause.
	OnRetry func(attempt int, err error, delay time.Duration)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy returns the default backoff bounded by timeout. A timeout of zero
// disables retries.
func NewPolicy(timeout time.Duration) *Policy {
	return &Policy{
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Timeout:      timeout,
	}
}

// Delay returns the pause before retry number attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. The last error is returned as is.
func (p *Policy) Do(ctx context.Context, fn Func) error {
	now := p.now
	if now == nil {
		now = time.Now
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	deadline := now().Add(p.Timeout)
	err := fn(ctx)
	for attempt := 1; err != nil; attempt++ {
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if !now().Before(deadline) {
			return err
		}
		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
		err = fn(ctx)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
