package usecase

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
)

// RetryPolicy bounds retries of transient provider failures.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter is the randomization factor applied to each delay, 0 disables it.
	Jitter float64
}

// DefaultRetryPolicy is three attempts starting at 500ms.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:  3,
	BaseDelay: 500 * time.Millisecond,
	MaxDelay:  10 * time.Second,
	Jitter:    0.2,
}

// RetryPolicyFromConfig converts the configured retry settings.
func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	p := DefaultRetryPolicy
	if cfg.Attempts > 0 {
		p.Attempts = cfg.Attempts
	}
	if cfg.BaseDelay > 0 {
		p.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = cfg.MaxDelay
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// retry runs fn until it succeeds, fails with a non-retryable error, the
// attempts are exhausted or ctx is done. It returns the number of attempts
// made and the last error.
func retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error), onRetry func(attempt int, err error, next time.Duration)) (T, int, error) {
	var (
		result   T
		attempts int
	)
	op := func() error {
		attempts++
		res, err := fn(ctx)
		if err == nil {
			result = res
			return nil
		}
		if !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		if onRetry != nil {
			onRetry(attempts, err, next)
		}
	}

	err := backoff.RetryNotify(op, policy.backOff(ctx), notify)
	return result, attempts, err
}
