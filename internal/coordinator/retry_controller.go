package coordinator

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/metrics"
	"git.home.luguber.info/inful/memobackup/internal/retry"
)

type retryDecision struct {
	retry bool
	delay time.Duration
}

// retryController decides whether a failed attempt is tried again. Only
// transient errors are retried, and never beyond the policy's attempt bound.
type retryController struct {
	policy   retry.Policy
	recorder metrics.Recorder
}

func (r retryController) newBackOff() backoff.BackOff {
	return r.policy.NewBackOff()
}

func (r retryController) decide(f *flight, err *ferrors.ClassifiedError) retryDecision {
	if err == nil || !err.IsTransient() {
		return retryDecision{}
	}
	if !r.policy.Allows(f.attempts) {
		return retryDecision{}
	}
	delay := f.backoff.NextBackOff()
	if delay == backoff.Stop {
		return retryDecision{}
	}
	if err.RetryStrategy() == ferrors.RetryRateLimit && r.policy.MaxDelay > delay {
		delay = r.policy.MaxDelay
	}
	r.recorder.IncRetry(f.intent.Reason.String())
	return retryDecision{retry: true, delay: delay}
}
