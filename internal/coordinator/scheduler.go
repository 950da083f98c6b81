package coordinator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// ticker fires the periodic fallback check. It only nudges the loop; the
// due-time and hash checks happen on the coordinator goroutine.
type ticker struct {
	scheduler gocron.Scheduler
}

func newScheduler(clock clockwork.Clock, interval time.Duration, fire func()) (*ticker, error) {
	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fire),
		gocron.WithName("periodic-sync-check"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create periodic sync job: %w", err)
	}
	return &ticker{scheduler: s}, nil
}

func (t *ticker) start() {
	slog.Debug("Starting periodic sync scheduler")
	t.scheduler.Start()
}

func (t *ticker) stop() error {
	return t.scheduler.Shutdown()
}
