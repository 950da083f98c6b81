package events

import "time"

// StatusChanged is published by the coordinator whenever its visible state
// (phase, retry count or error) changes.
type StatusChanged struct {
	Phase         string
	PreviousPhase string
	RetryCount    int
	Error         string
	Message       string
	At            time.Time
}

// SyncCompleted is published once per finished intent, after retries are exhausted or on success.
type SyncCompleted struct {
	IntentID    string
	Reason      string
	FileName    string
	Hash        string
	Attempts    int
	Success     bool
	Error       string
	CompletedAt time.Time
}
