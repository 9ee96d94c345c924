// Package retry runs collaborator calls under a bounded retry policy.
//
// A Policy is shared by every call site that talks to an embedder or an
// LLM so the attempt budget and backoff are configured in one place.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// Policy bounds how often and how quickly a call is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. It doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil uses domain.IsRetryable.
	Retryable func(error) bool

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: domain.DefaultRetryAttempts,
		BaseDelay:   domain.DefaultRetryBaseDelay,
		MaxDelay:    domain.DefaultRetryMaxDelay,
	}
}

// FromSettings builds a policy from configuration.
func FromSettings(s domain.RetrySettings) Policy {
	p := DefaultPolicy()
	if s.MaxAttempts > 0 {
		p.MaxAttempts = s.MaxAttempts
	}
	if s.BaseDelay > 0 {
		p.BaseDelay = s.BaseDelay
	}
	if s.MaxDelay > 0 {
		p.MaxDelay = s.MaxDelay
	}
	return p
}

// Result describes how a call under the policy went.
type Result struct {
	// Attempts is the number of times the function was invoked.
	Attempts int

	// Exhausted is true when the last error was retryable but the budget ran out.
	Exhausted bool
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// attempt budget is spent, or ctx is done. The returned error is the
// last one fn produced, or the context error if ctx ended a wait.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (Result, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = domain.IsRetryable
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = Sleep
	}

	var res Result
	var err error
	for res.Attempts < attempts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return res, err
		}

		res.Attempts++
		err = fn(ctx)
		if err == nil {
			return res, nil
		}
		if !retryable(err) {
			return res, err
		}
		if res.Attempts == attempts {
			res.Exhausted = true
			break
		}

		if serr := sleep(ctx, p.Delay(res.Attempts, err)); serr != nil {
			return res, errors.Join(err, serr)
		}
	}
	return res, err
}

// Delay returns the wait after the given attempt number (1-based).
// A provider's RetryAfter hint wins when it is longer, still capped.
func (p Policy) Delay(attempt int, err error) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}

	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.RetryAfter > d {
		d = pe.RetryAfter
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
