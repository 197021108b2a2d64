package model

import (
	"context"
	"errors"
	"time"

	"github.com/agentic-research/strata/api"
)

// RetryPolicy wraps a decision source with bounded retries on
// retryable remote errors. Kept apart from the executor loop so the
// backoff behavior is testable on its own; the executor's iteration
// ceiling counts rounds, not resends.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy resends twice with exponential backoff.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Wrap returns a decision source that applies the policy to src.
func (p *RetryPolicy) Wrap(src DecisionSource) DecisionSource {
	return &retryingSource{policy: p, src: src}
}

type retryingSource struct {
	policy *RetryPolicy
	src    DecisionSource
}

func (r *retryingSource) Decide(ctx context.Context, req api.DecisionRequest) (*api.Decision, error) {
	var lastErr error
	delay := r.policy.BaseDelay
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := delay
			var remote *RemoteError
			if errors.As(lastErr, &remote) && remote.RetryAfter > wait {
				wait = remote.RetryAfter
			}
			if wait > r.policy.MaxDelay {
				wait = r.policy.MaxDelay
			}
			if err := r.policy.wait(ctx, wait); err != nil {
				return nil, err
			}
			delay *= 2
		}

		decision, err := r.src.Decide(ctx, req)
		if err == nil {
			return decision, nil
		}
		lastErr = err

		var remote *RemoteError
		if !errors.As(err, &remote) || !remote.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (p *RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
