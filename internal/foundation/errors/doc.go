// Package errors provides the classified error primitives used across memobackup.
//
// Every failure that crosses a component boundary (remote upload, local store,
// configuration) is expressed as a ClassifiedError so the sync coordinator can
// decide between retrying, surfacing the failure, or giving up without parsing
// error strings.
//
// Key features:
//   - ErrorCategory: broad classification (not_connected, auth, network, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: retry behavior (never, backoff, user action, ...)
//   - ErrorBuilder: fluent API for creating classified errors
//   - HTTP and CLI adapters for error presentation
//
// Example usage:
//
//	err := errors.NetworkError("upload timed out").
//		WithContext("file_name", name).
//		WithCause(originalErr).
//		Build()
package errors
