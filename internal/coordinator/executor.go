package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"git.home.luguber.info/inful/memobackup/internal/events"
	"git.home.luguber.info/inful/memobackup/internal/fingerprint"
	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
	"git.home.luguber.info/inful/memobackup/internal/metrics"
	"git.home.luguber.info/inful/memobackup/internal/observability"
	"git.home.luguber.info/inful/memobackup/internal/observer"
	"git.home.luguber.info/inful/memobackup/internal/remote"
	"git.home.luguber.info/inful/memobackup/internal/retry"
)

// flight is the intent currently being executed, including its retry waits.
type flight struct {
	intent    *Intent
	attempts  int
	uploading bool
	backoff   backoff.BackOff
	fileName  string
	hash      fingerprint.Hash
}

type uploadResult struct {
	intentID string
	attempt  int
	hash     fingerprint.Hash
	result   remote.UploadResult
	duration time.Duration
	err      error
}

func (c *Coordinator) onChange(ev observer.ChangeEvent) {
	if !c.st.autoSyncEnabled {
		c.recorder.IncSuppressed(metrics.SuppressedDisabled)
		return
	}
	hash, err := c.deps.Fingerprinter.CurrentHash(c.ctx)
	if err != nil {
		slog.Warn("Failed to fingerprint after change", logfields.Key(ev.Key), logfields.Error(err))
		c.debounce.restart()
		return
	}
	if !c.unsynced(hash) {
		c.recorder.IncSuppressed(metrics.SuppressedEvent)
		slog.Debug("Change matches last backup, ignoring", logfields.Key(ev.Key))
		return
	}
	c.debounce.restart()
}

func (c *Coordinator) onDebounceFired() {
	c.debounce.fired()

	in := c.st.deferred
	c.st.deferred = nil
	if in == nil {
		in = c.newIntent(ReasonChangeDriven, "", "", nil)
	}
	if in.Reason != ReasonManual && !c.st.autoSyncEnabled {
		c.recorder.IncSuppressed(metrics.SuppressedDisabled)
		c.discard(in)
		return
	}

	hash, err := c.deps.Fingerprinter.CurrentHash(c.ctx)
	if err != nil {
		slog.Warn("Failed to fingerprint at debounce expiry", logfields.Error(err))
	} else {
		in.Hash = hash
		if in.Reason != ReasonManual && !c.unsynced(hash) {
			c.recorder.IncSuppressed(metrics.SuppressedDebounce)
			slog.Debug("Debounced changes were a net no-op", logfields.Hash(string(hash)))
			c.discard(in)
			return
		}
	}
	c.requestSync(in)
}

func (c *Coordinator) onTick() {
	if !c.st.autoSyncEnabled || c.st.active != nil || c.st.syncIntervalMinutes <= 0 {
		return
	}
	interval := time.Duration(c.st.syncIntervalMinutes) * time.Minute
	now := c.clock.Now()
	if !c.st.lastSyncTime.IsZero() && now.Sub(c.st.lastSyncTime) < interval {
		return
	}
	hash, err := c.deps.Fingerprinter.CurrentHash(c.ctx)
	if err != nil {
		slog.Warn("Failed to fingerprint for periodic sync", logfields.Error(err))
		return
	}
	if !c.unsynced(hash) {
		c.recorder.IncSuppressed(metrics.SuppressedPeriodic)
		return
	}
	slog.Info("Periodic sync due", logfields.Hash(string(hash)))
	c.requestSync(c.newIntent(ReasonPeriodic, hash, "", nil))
}

// unsynced reports whether hash differs from the last confirmed backup. An
// empty store that was never synced has nothing to back up.
func (c *Coordinator) unsynced(hash fingerprint.Hash) bool {
	if c.st.lastSyncedHash == "" {
		return hash != fingerprint.Empty
	}
	return hash != c.st.lastSyncedHash
}

// requestSync runs in immediately when idle, otherwise it takes the single
// pending slot. A newer pending intent replaces the older one and inherits
// its waiters, so manual callers always get an answer.
func (c *Coordinator) requestSync(in *Intent) {
	if c.st.active == nil {
		c.startIntent(in)
		return
	}
	if prev := c.st.pending; prev != nil {
		in.waiters = append(prev.waiters, in.waiters...)
		if prev.Reason == ReasonManual && in.Reason != ReasonManual {
			in.Reason = ReasonManual
			if in.FileNameHint == "" {
				in.FileNameHint = prev.FileNameHint
			}
		}
		c.recorder.IncCoalesced()
		slog.Debug("Pending intent replaced", logfields.IntentID(prev.ID), slog.String("replaced_by", in.ID))
	}
	c.st.pending = in
	slog.Debug("Sync queued behind active upload", logfields.IntentID(in.ID), logfields.Reason(in.Reason.String()))
}

func (c *Coordinator) startIntent(in *Intent) {
	name := in.FileNameHint
	if name == "" {
		name = c.names.Generate(in.Reason.FileTag(), c.st.fileNamePrefix)
	}
	c.st.active = &flight{intent: in, backoff: c.retries.newBackOff(), fileName: name}
	c.st.retryCount = 0
	c.st.nextRetry = time.Time{}
	slog.Info("Sync started",
		logfields.IntentID(in.ID),
		logfields.Reason(in.Reason.String()),
		logfields.FileName(name))
	c.attempt()
}

// attempt snapshots the store and launches one upload on a worker goroutine.
func (c *Coordinator) attempt() {
	f := c.st.active
	f.attempts++
	c.st.phase = PhaseSyncing

	snap, err := c.deps.Fingerprinter.Snapshot(c.ctx)
	if err != nil {
		c.onResult(uploadResult{intentID: f.intent.ID, attempt: f.attempts, err: err})
		return
	}
	f.hash = snap.Hash
	f.uploading = true

	name := f.fileName
	ctx := observability.WithAttempt(observability.WithIntent(c.ctx, f.intent.ID, f.intent.Reason.String()), f.attempts, name)
	client := c.deps.Remote
	silent := f.intent.Reason != ReasonManual
	res := uploadResult{intentID: f.intent.ID, attempt: f.attempts, hash: snap.Hash}
	start := c.clock.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				res.err = ferrors.InternalError(fmt.Sprintf("upload panic: %v", r)).Build()
			}
			res.duration = c.clock.Since(start)
			select {
			case c.results <- res:
			case <-ctx.Done():
			}
		}()
		res.result, res.err = client.Upload(ctx, name, snap.Content, silent)
	}()
}

func (c *Coordinator) onResult(res uploadResult) {
	f := c.st.active
	if f == nil || f.intent.ID != res.intentID {
		slog.Warn("Discarding stale upload result", logfields.IntentID(res.intentID))
		return
	}
	f.uploading = false
	reason := f.intent.Reason.String()
	remoteName := c.deps.Remote.Name()
	c.recorder.ObserveUploadDuration(remoteName, res.duration, res.err == nil)

	if res.err == nil {
		c.complete(f, res)
		return
	}

	cerr := retry.Classify(res.err)
	if cerr.IsTransient() && !c.st.autoSyncEnabled && f.intent.Reason != ReasonManual {
		slog.Info("Upload failed after auto sync was disabled, not retrying",
			logfields.IntentID(f.intent.ID),
			logfields.Attempt(f.attempts),
			logfields.Error(cerr))
		c.recorder.IncUploadResult(reason, metrics.ResultTerminal)
		c.abandon(f)
		return
	}
	decision := c.retries.decide(f, cerr)
	if decision.retry {
		c.recorder.IncUploadResult(reason, metrics.ResultRetryable)
		c.st.retryCount = f.attempts
		c.st.lastError = cerr
		c.st.phase = PhaseRetrying
		c.st.nextRetry = c.clock.Now().Add(decision.delay)
		c.armRetryTimer(decision.delay)
		slog.Warn("Upload failed, retrying",
			logfields.IntentID(f.intent.ID),
			logfields.Attempt(f.attempts),
			logfields.Delay(decision.delay),
			logfields.Category(string(cerr.Category())),
			logfields.Error(cerr))
		return
	}

	c.recorder.IncUploadResult(reason, metrics.ResultTerminal)
	if cerr.IsTransient() {
		c.recorder.IncRetryExhausted(reason)
	}
	c.st.active = nil
	c.st.retryCount = f.attempts
	c.st.nextRetry = time.Time{}
	c.st.lastError = cerr
	c.st.phase = PhaseError
	slog.Error("Sync failed",
		logfields.IntentID(f.intent.ID),
		logfields.Reason(reason),
		logfields.Attempt(f.attempts),
		logfields.Category(string(cerr.Category())),
		logfields.Error(cerr))

	out := Outcome{
		IntentID:    f.intent.ID,
		Reason:      f.intent.Reason,
		FileName:    f.fileName,
		Hash:        res.hash,
		Attempts:    f.attempts,
		CompletedAt: c.clock.Now(),
		Err:         cerr,
	}
	resolve(f.intent, out)
	c.publishCompleted(out)
	c.afterOutcome()
}

func (c *Coordinator) complete(f *flight, res uploadResult) {
	now := c.clock.Now()
	c.st.active = nil
	c.st.lastSyncedHash = res.hash
	c.st.lastSyncTime = now
	c.st.lastFileName = f.fileName
	c.st.lastError = nil
	c.st.retryCount = 0
	c.st.nextRetry = time.Time{}
	c.st.phase = PhaseSynced
	if err := c.deps.Settings.RecordSync(c.ctx, now, string(res.hash)); err != nil {
		slog.Warn("Failed to persist sync record", logfields.Error(err))
	}
	c.recorder.IncUploadResult(f.intent.Reason.String(), metrics.ResultSuccess)
	c.recorder.SetLastSuccess(now)
	slog.Info("Sync completed",
		logfields.IntentID(f.intent.ID),
		logfields.Reason(f.intent.Reason.String()),
		logfields.FileName(f.fileName),
		logfields.Hash(string(res.hash)),
		logfields.Attempt(f.attempts),
		logfields.DurationMS(float64(res.duration.Microseconds())/1000))

	out := Outcome{
		IntentID:    f.intent.ID,
		Reason:      f.intent.Reason,
		Success:     true,
		FileName:    f.fileName,
		Location:    res.result.Location,
		Hash:        res.hash,
		Attempts:    f.attempts,
		CompletedAt: now,
	}
	resolve(f.intent, out)
	c.publishCompleted(out)
	c.afterOutcome()
}

// afterOutcome promotes the pending intent, if it still has work to do, into
// a fresh debounce cycle.
func (c *Coordinator) afterOutcome() {
	in := c.st.pending
	c.st.pending = nil
	if in == nil {
		return
	}
	if in.Reason == ReasonManual {
		c.st.deferred = in
		c.debounce.restart()
		return
	}
	hash, err := c.deps.Fingerprinter.CurrentHash(c.ctx)
	if err == nil && !c.unsynced(hash) {
		c.recorder.IncSuppressed(metrics.SuppressedPending)
		slog.Debug("Pending intent already covered by last backup", logfields.IntentID(in.ID))
		c.discard(in)
		return
	}
	c.st.deferred = in
	c.debounce.restart()
}

// abandon ends a change-driven or periodic flight because auto sync was
// turned off. It leaves the coordinator idle rather than in error.
func (c *Coordinator) abandon(f *flight) {
	c.stopRetryTimer()
	c.st.active = nil
	c.st.retryCount = 0
	c.st.phase = PhaseIdle
	out := Outcome{
		IntentID:    f.intent.ID,
		Reason:      f.intent.Reason,
		FileName:    f.fileName,
		Attempts:    f.attempts,
		CompletedAt: c.clock.Now(),
		Err:         ferrors.NewError(ferrors.CategoryRuntime, "auto sync disabled").Build(),
	}
	resolve(f.intent, out)
	c.publishCompleted(out)
	c.afterOutcome()
}

func (c *Coordinator) onRetryTimer() {
	c.retryC = nil
	if c.st.active == nil {
		return
	}
	c.st.nextRetry = time.Time{}
	c.attempt()
}

func (c *Coordinator) armRetryTimer(d time.Duration) {
	resetTimer(c.retryT, d)
	c.retryC = c.retryT.Chan()
}

func (c *Coordinator) stopRetryTimer() {
	stopTimer(c.retryT)
	c.retryC = nil
	c.st.nextRetry = time.Time{}
}

// discard drops an intent that turned out to be a no-op; its waiters learn
// that the remote already holds their data.
func (c *Coordinator) discard(in *Intent) {
	if len(in.waiters) == 0 {
		return
	}
	resolve(in, Outcome{
		IntentID:    in.ID,
		Reason:      in.Reason,
		Success:     true,
		FileName:    c.st.lastFileName,
		Hash:        c.st.lastSyncedHash,
		CompletedAt: c.clock.Now(),
	})
}

func (c *Coordinator) publishCompleted(out Outcome) {
	if c.deps.Bus == nil {
		return
	}
	evt := events.SyncCompleted{
		IntentID:    out.IntentID,
		Reason:      out.Reason.String(),
		FileName:    out.FileName,
		Hash:        string(out.Hash),
		Attempts:    out.Attempts,
		Success:     out.Success,
		CompletedAt: out.CompletedAt,
	}
	if out.Err != nil {
		evt.Error = out.Err.Error()
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.StatusPublishTimeout)
	defer cancel()
	if err := c.deps.Bus.Publish(ctx, evt); err != nil {
		slog.Debug("SyncCompleted not delivered to every subscriber", logfields.Error(err))
	}
}
