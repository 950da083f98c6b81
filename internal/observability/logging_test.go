package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextAccumulates(t *testing.T) {
	ctx := WithIntent(context.Background(), "intent-1", "manual")
	ctx = WithAttempt(ctx, 2, "backup.json")

	lc := GetContext(ctx)
	require.Equal(t, LogContext{IntentID: "intent-1", Reason: "manual", Attempt: 2, FileName: "backup.json"}, lc)

	// The parent context is unchanged.
	require.Equal(t, LogContext{}, GetContext(context.Background()))
}

func TestLogHelpersAttachContext(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	ctx := WithAttempt(WithIntent(context.Background(), "intent-9", "periodic"), 1, "x.json")
	InfoContext(ctx, "uploaded", slog.Int("bytes", 10))
	WarnContext(ctx, "slow")
	DebugContext(context.Background(), "bare")

	out := buf.String()
	require.Contains(t, out, "intent_id=intent-9")
	require.Contains(t, out, "reason=periodic")
	require.Contains(t, out, "attempt=1")
	require.Contains(t, out, "bytes=10")
	require.Contains(t, out, "msg=slow")
	require.Contains(t, out, "msg=bare")
}
