package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/retry"
)

type callResult[T any] struct {
	val T
	err error
}

// callWithTimeout runs fn on its own goroutine. The call is abandoned
// when ctx ends or timeout elapses, even if fn ignores its context.
// A per-call timeout that fires while ctx is still live is reported as
// a transient provider failure so the retry policy may try again.
func callWithTimeout[T any](
	ctx context.Context, timeout time.Duration, provider string, fn func(context.Context) (T, error),
) (T, error) {
	var cctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		cctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		var r callResult[T]
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("%s: panic: %v", provider, p)
			}
			done <- r
		}()
		r.val, r.err = fn(cctx)
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.val, callTimeout(provider, timeout)
		}
		return r.val, r.err
	case <-cctx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, callTimeout(provider, timeout)
	}
}

func callTimeout(provider string, timeout time.Duration) error {
	return &domain.ProviderError{
		Provider: provider,
		Message:  fmt.Sprintf("no response within %s", timeout),
	}
}

// collaboratorError builds the boundary error for a failed embedder or
// LLM call. A finished caller context wins over the collaborator error.
func collaboratorError(
	ctx context.Context, kind domain.ErrorKind, stage domain.Stage, res retry.Result, err error, what string,
) *domain.PipelineError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextError(ctxErr, stage, res.Attempts, err)
	}
	msg := fmt.Sprintf("%s failed after %d attempt(s)", what, res.Attempts)
	if errors.Is(err, domain.ErrAuthInvalid) {
		msg = fmt.Sprintf("%s rejected the credentials", what)
	}
	return &domain.PipelineError{
		Kind:      kind,
		Stage:     stage,
		Attempts:  res.Attempts,
		Retryable: domain.IsRetryable(err),
		Message:   msg,
		Err:       err,
	}
}

func contextError(ctxErr error, stage domain.Stage, attempts int, cause error) *domain.PipelineError {
	if cause == nil {
		cause = ctxErr
	}
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return &domain.PipelineError{
			Kind:      domain.KindTimeout,
			Stage:     stage,
			Attempts:  attempts,
			Retryable: true,
			Message:   "deadline exceeded",
			Err:       cause,
		}
	}
	return &domain.PipelineError{
		Kind:     domain.KindCanceled,
		Stage:    stage,
		Attempts: attempts,
		Message:  "canceled by caller",
		Err:      cause,
	}
}
