package retry

import (
	"context"
	stderrors "errors"
	"net"

	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

// Classify returns err as a ClassifiedError. Unclassified timeouts and
// network failures become retryable network errors; anything else is an
// internal error that is never retried.
func Classify(err error) *errors.ClassifiedError {
	if err == nil {
		return nil
	}
	if ce, ok := errors.AsClassified(err); ok {
		return ce
	}

	var netErr net.Error
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.As(err, &netErr):
		return errors.WrapError(err, errors.CategoryNetwork, "network failure").Retryable().Build()
	case stderrors.Is(err, context.Canceled):
		return errors.WrapError(err, errors.CategoryRuntime, "operation canceled").Build()
	default:
		return errors.WrapError(err, errors.CategoryInternal, "unexpected failure").Build()
	}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	ce := Classify(err)
	return ce != nil && ce.IsTransient()
}
