package metrics

import "time"

// ResultLabel enumerates upload attempt outcomes.
type ResultLabel string

const (
	ResultSuccess   ResultLabel = "success"
	ResultRetryable ResultLabel = "retryable"
	ResultTerminal  ResultLabel = "terminal"
)

// SuppressionLabel names the check that dropped a sync trigger as a no-op.
type SuppressionLabel string

const (
	SuppressedEvent    SuppressionLabel = "event"    // hash unchanged when the change arrived
	SuppressedDebounce SuppressionLabel = "debounce" // burst was a net no-op at timer expiry
	SuppressedPending  SuppressionLabel = "pending"  // pending intent already covered by the last sync
	SuppressedPeriodic SuppressionLabel = "periodic" // periodic tick found nothing new
	SuppressedDisabled SuppressionLabel = "disabled" // auto sync is off
)

// Recorder defines observability hooks for the sync coordinator.
type Recorder interface {
	ObserveUploadDuration(remote string, d time.Duration, success bool)
	IncUploadResult(reason string, result ResultLabel)
	IncRetry(reason string)
	IncRetryExhausted(reason string)
	IncCoalesced()
	IncSuppressed(label SuppressionLabel)
	SetPhase(phase string)
	SetLastSuccess(t time.Time)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveUploadDuration(string, time.Duration, bool) {}
func (NoopRecorder) IncUploadResult(string, ResultLabel)               {}
func (NoopRecorder) IncRetry(string)                                   {}
func (NoopRecorder) IncRetryExhausted(string)                          {}
func (NoopRecorder) IncCoalesced()                                     {}
func (NoopRecorder) IncSuppressed(SuppressionLabel)                    {}
func (NoopRecorder) SetPhase(string)                                   {}
func (NoopRecorder) SetLastSuccess(time.Time)                          {}
