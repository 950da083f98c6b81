// Package observability carries sync context through context.Context so that
// code far from the coordinator (remote backends) logs with intent details.
package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/memobackup/internal/logfields"
)

// LogContext holds structured logging context information.
type LogContext struct {
	IntentID string
	Reason   string
	Attempt  int
	FileName string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithIntent records the intent an operation belongs to.
func WithIntent(ctx context.Context, intentID, reason string) context.Context {
	lc := extractLogContext(ctx)
	lc.IntentID = intentID
	lc.Reason = reason
	return context.WithValue(ctx, logContextKey, lc)
}

// WithAttempt records the upload attempt number and target file.
func WithAttempt(ctx context.Context, attempt int, fileName string) context.Context {
	lc := extractLogContext(ctx)
	lc.Attempt = attempt
	lc.FileName = fileName
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := make([]slog.Attr, 0, 4)
	if lc.IntentID != "" {
		attrs = append(attrs, logfields.IntentID(lc.IntentID))
	}
	if lc.Reason != "" {
		attrs = append(attrs, logfields.Reason(lc.Reason))
	}
	if lc.Attempt > 0 {
		attrs = append(attrs, logfields.Attempt(lc.Attempt))
	}
	if lc.FileName != "" {
		attrs = append(attrs, logfields.FileName(lc.FileName))
	}
	return attrs
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelInfo, msg, append(getLogAttrs(ctx), attrs...)...)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelWarn, msg, append(getLogAttrs(ctx), attrs...)...)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelDebug, msg, append(getLogAttrs(ctx), attrs...)...)
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}
