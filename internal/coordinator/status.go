package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/memobackup/internal/events"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
	"git.home.luguber.info/inful/memobackup/internal/metrics"
)

// Phase is the externally visible state of the coordinator.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseSyncing  Phase = "syncing"
	PhaseRetrying Phase = "retrying"
	PhaseSynced   Phase = "synced"
	PhaseError    Phase = "error"
)

// IntentInfo describes an intent without exposing its waiters.
type IntentInfo struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
	FileName    string    `json:"file_name,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
}

// Status is a point-in-time copy of coordinator state.
type Status struct {
	Phase               Phase       `json:"phase"`
	Debouncing          bool        `json:"debouncing"`
	Active              *IntentInfo `json:"active,omitempty"`
	Pending             *IntentInfo `json:"pending,omitempty"`
	LastSyncTime        time.Time   `json:"last_sync_time,omitzero"`
	LastSyncedHash      string      `json:"last_synced_hash,omitempty"`
	LastFileName        string      `json:"last_file_name,omitempty"`
	LastError           string      `json:"last_error,omitempty"`
	ErrorCategory       string      `json:"error_category,omitempty"`
	RetryCount          int         `json:"retry_count"`
	NextRetryAt         time.Time   `json:"next_retry_at,omitzero"`
	AutoSyncEnabled     bool        `json:"auto_sync_enabled"`
	SyncIntervalMinutes int         `json:"sync_interval_minutes"`
	FileNamePrefix      string      `json:"file_name_prefix,omitempty"`
	Message             string      `json:"message"`
}

// render produces the one-line human summary shown in the UI.
func (s Status) render(now time.Time) string {
	switch s.Phase {
	case PhaseSyncing:
		return "Syncing…"
	case PhaseRetrying:
		if !s.NextRetryAt.IsZero() {
			secs := int(math.Ceil(s.NextRetryAt.Sub(now).Seconds()))
			return fmt.Sprintf("Retrying in %ds", max(secs, 0))
		}
		return "Retrying…"
	case PhaseError:
		return "Sync failed: " + s.LastError
	case PhaseSynced:
		if !s.AutoSyncEnabled {
			return "Synced (auto sync disabled)"
		}
		return "Synced"
	default:
		if !s.AutoSyncEnabled {
			return "Auto sync disabled"
		}
		return "Idle"
	}
}

func (c *Coordinator) snapshot() Status {
	st := &c.st
	s := Status{
		Phase:               st.phase,
		Debouncing:          c.debounce != nil && c.debounce.active(),
		LastSyncTime:        st.lastSyncTime,
		LastSyncedHash:      string(st.lastSyncedHash),
		LastFileName:        st.lastFileName,
		RetryCount:          st.retryCount,
		NextRetryAt:         st.nextRetry,
		AutoSyncEnabled:     st.autoSyncEnabled,
		SyncIntervalMinutes: st.syncIntervalMinutes,
		FileNamePrefix:      st.fileNamePrefix,
	}
	if f := st.active; f != nil {
		s.Active = &IntentInfo{
			ID:          f.intent.ID,
			Reason:      f.intent.Reason.String(),
			RequestedAt: f.intent.RequestedAt,
			FileName:    f.fileName,
			Attempts:    f.attempts,
		}
	}
	if p := st.pending; p != nil {
		s.Pending = &IntentInfo{ID: p.ID, Reason: p.Reason.String(), RequestedAt: p.RequestedAt}
	}
	if st.lastError != nil {
		s.LastError = st.lastError.Message()
		s.ErrorCategory = string(st.lastError.Category())
	}
	s.Message = s.render(c.clock.Now())
	return s
}

// publish stores a fresh snapshot and announces it when the phase, retry
// count or error changed.
func (c *Coordinator) publish() {
	s := c.snapshot()
	prev := c.status.Swap(&s)
	c.reporter.report(c.ctx, prev, &s)
}

// statusReporter fans visible state changes out to the bus and metrics.
type statusReporter struct {
	bus      *events.Bus
	recorder metrics.Recorder
	clock    clockwork.Clock
	timeout  time.Duration
}

func newStatusReporter(bus *events.Bus, rec metrics.Recorder, clock clockwork.Clock, timeout time.Duration) *statusReporter {
	return &statusReporter{bus: bus, recorder: rec, clock: clock, timeout: timeout}
}

func (r *statusReporter) report(ctx context.Context, prev, cur *Status) {
	if prev != nil && prev.Phase == cur.Phase && prev.RetryCount == cur.RetryCount && prev.LastError == cur.LastError {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Status listener panicked", logfields.Panic(rec))
		}
	}()
	r.recorder.SetPhase(string(cur.Phase))
	if r.bus == nil {
		return
	}
	previous := ""
	if prev != nil {
		previous = string(prev.Phase)
	}
	evt := events.StatusChanged{
		Phase:         string(cur.Phase),
		PreviousPhase: previous,
		RetryCount:    cur.RetryCount,
		Error:         cur.LastError,
		Message:       cur.Message,
		At:            r.clock.Now(),
	}
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.bus.Publish(pctx, evt); err != nil {
		slog.Debug("StatusChanged not delivered to every subscriber", logfields.Phase(evt.Phase), logfields.Error(err))
	}
}
