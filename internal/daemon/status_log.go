package daemon

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/memobackup/internal/events"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
)

// logStatusChanges mirrors coordinator status transitions into the log.
func logStatusChanges(ctx context.Context, bus *events.Bus) {
	statuses, unsub := events.Subscribe[events.StatusChanged](bus, 32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-statuses:
			if !ok {
				return
			}
			attrs := []any{
				logfields.Phase(evt.Phase),
				slog.String("previous_phase", evt.PreviousPhase),
				slog.Int("retry_count", evt.RetryCount),
			}
			if evt.Error != "" {
				attrs = append(attrs, slog.String("error", evt.Error))
				slog.Warn(evt.Message, attrs...)
				continue
			}
			slog.Info(evt.Message, attrs...)
		}
	}
}
