package provisioning

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryTransient runs fn until it succeeds, fails with a non transient
// error, or the attempts in cfg run out. fn is told its attempt number and
// may stop retries by returning backoff.Permanent.
func retryTransient(ctx context.Context, cfg RetryConfig, fn func(attempt int) error, onRetry func(err error, wait time.Duration)) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.MaxInterval = cfg.MaxInterval
	policy.MaxElapsedTime = 0

	retries := cfg.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}

	attempt := 0
	op := func() error {
		attempt++
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)
	return backoff.RetryNotify(op, b, onRetry)
}
