// Package coordinator keeps the local memo store backed up to a remote target.
//
// A Coordinator is an actor: every piece of sync state is owned by the single
// goroutine running Run, which selects over change events, API commands,
// debounce and retry timers, periodic ticks and upload results. Uploads are the
// only work done on other goroutines, and at most one runs at a time.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/memobackup/internal/events"
	"git.home.luguber.info/inful/memobackup/internal/filename"
	"git.home.luguber.info/inful/memobackup/internal/fingerprint"
	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
	"git.home.luguber.info/inful/memobackup/internal/metrics"
	"git.home.luguber.info/inful/memobackup/internal/observer"
	"git.home.luguber.info/inful/memobackup/internal/remote"
	"git.home.luguber.info/inful/memobackup/internal/retry"
	"git.home.luguber.info/inful/memobackup/internal/store"
)

// Reason says why a sync was requested.
type Reason int

const (
	ReasonChangeDriven Reason = iota
	ReasonPeriodic
	ReasonManual
)

func (r Reason) String() string {
	switch r {
	case ReasonManual:
		return "manual"
	case ReasonPeriodic:
		return "periodic"
	default:
		return "change_driven"
	}
}

// FileTag is the reason segment used in generated file names.
func (r Reason) FileTag() string {
	if r == ReasonChangeDriven {
		return "auto"
	}
	return r.String()
}

// Intent is one desire to synchronize.
type Intent struct {
	ID           string
	Reason       Reason
	Hash         fingerprint.Hash
	RequestedAt  time.Time
	FileNameHint string

	waiters []chan Outcome
}

// Outcome is the final result of an intent, after any retries.
type Outcome struct {
	IntentID    string
	Reason      Reason
	Success     bool
	FileName    string
	Location    string
	Hash        fingerprint.Hash
	Attempts    int
	CompletedAt time.Time
	Err         error
}

// Fingerprinter is the read side of the local store the coordinator needs.
type Fingerprinter interface {
	CurrentHash(ctx context.Context) (fingerprint.Hash, error)
	Snapshot(ctx context.Context) (fingerprint.Snapshot, error)
}

// SettingsStore persists the user-facing sync settings.
type SettingsStore interface {
	Load(ctx context.Context) (store.Settings, error)
	SetAutoSyncEnabled(ctx context.Context, enabled bool) error
	SetSyncInterval(ctx context.Context, minutes int) error
	SetFileNamePrefix(ctx context.Context, prefix string) error
	RecordSync(ctx context.Context, at time.Time, hash string) error
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Fingerprinter Fingerprinter
	Remote        remote.Client
	Settings      SettingsStore
	Names         *filename.Generator // default label generator when nil
	Bus           *events.Bus         // optional
	Recorder      metrics.Recorder    // optional
	Clock         clockwork.Clock     // real clock when nil
}

// Options tune timing.
type Options struct {
	DebounceWindow time.Duration
	// TickInterval drives the periodic fallback check; zero disables the
	// internal scheduler (TriggerPeriodic still works).
	TickInterval         time.Duration
	Retry                retry.Policy
	StatusPublishTimeout time.Duration
	EventBuffer          int
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:       3 * time.Second,
		TickInterval:         time.Minute,
		Retry:                retry.DefaultPolicy(),
		StatusPublishTimeout: 100 * time.Millisecond,
		EventBuffer:          256,
	}
}

// Coordinator owns the sync state machine.
type Coordinator struct {
	deps     Deps
	opts     Options
	clock    clockwork.Clock
	recorder metrics.Recorder
	names    *filename.Generator
	retries  retryController

	changes chan observer.ChangeEvent
	cmds    chan func()
	results chan uploadResult
	ticks   chan struct{}

	running   atomic.Bool
	readyOnce sync.Once
	ready     chan struct{}
	status    atomic.Pointer[Status]

	// Loop-owned state below; touched only by the Run goroutine.
	ctx      context.Context
	st       state
	debounce *coalescer
	retryT   clockwork.Timer
	retryC   <-chan time.Time
	reporter *statusReporter
}

type state struct {
	lastSyncedHash      fingerprint.Hash
	lastSyncTime        time.Time
	lastFileName        string
	autoSyncEnabled     bool
	syncIntervalMinutes int
	fileNamePrefix      string

	active     *flight
	pending    *Intent
	deferred   *Intent // pending intent waiting for its debounce cycle
	retryCount int
	nextRetry  time.Time
	lastError  *ferrors.ClassifiedError
	phase      Phase
}

// New validates deps and builds a Coordinator. Call Run to start it.
func New(deps Deps, opts Options) (*Coordinator, error) {
	if deps.Fingerprinter == nil {
		return nil, ferrors.ValidationError("fingerprinter is required").Build()
	}
	if deps.Remote == nil {
		return nil, ferrors.ValidationError("remote client is required").Build()
	}
	if deps.Settings == nil {
		return nil, ferrors.ValidationError("settings store is required").Build()
	}

	def := DefaultOptions()
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = def.DebounceWindow
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = def.Retry
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid retry policy").Build()
	}
	if opts.StatusPublishTimeout <= 0 {
		opts.StatusPublishTimeout = def.StatusPublishTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	rec := deps.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	names := deps.Names
	if names == nil {
		names = filename.NewGenerator("", clock)
	}

	c := &Coordinator{
		deps:     deps,
		opts:     opts,
		clock:    clock,
		recorder: rec,
		names:    names,
		retries:  retryController{policy: opts.Retry, recorder: rec},
		changes:  make(chan observer.ChangeEvent, opts.EventBuffer),
		cmds:     make(chan func()),
		results:  make(chan uploadResult, 1),
		ticks:    make(chan struct{}, 1),
		ready:    make(chan struct{}),
	}
	c.status.Store(&Status{Phase: PhaseIdle, Message: "Idle"})
	return c, nil
}

// Ready is closed once Run has loaded persisted settings.
func (c *Coordinator) Ready() <-chan struct{} { return c.ready }

// Run drives the coordinator until ctx is canceled. It never returns early
// because of a sync failure.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ferrors.DaemonError("coordinator is already running").Build()
	}
	defer c.running.Store(false)

	settings, err := c.deps.Settings.Load(ctx)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryStore, "load sync settings").Build()
	}

	c.ctx = ctx
	c.st = state{
		lastSyncedHash:      fingerprint.Hash(settings.LastSyncedHash),
		lastSyncTime:        settings.LastSyncTime,
		autoSyncEnabled:     settings.AutoSyncEnabled,
		syncIntervalMinutes: settings.SyncIntervalMinutes,
		fileNamePrefix:      filename.Sanitize(settings.CustomFileNamePrefix),
		phase:               PhaseIdle,
	}
	if !c.st.lastSyncTime.IsZero() && c.st.lastSyncedHash != "" {
		c.st.phase = PhaseSynced
	}
	c.debounce = newCoalescer(c.clock, c.opts.DebounceWindow)
	defer c.debounce.cancel()
	c.retryT = newStoppedTimer(c.clock)
	defer c.retryT.Stop()
	c.reporter = newStatusReporter(c.deps.Bus, c.recorder, c.clock, c.opts.StatusPublishTimeout)

	if c.opts.TickInterval > 0 {
		sched, err := newScheduler(c.clock, c.opts.TickInterval, c.TriggerPeriodic)
		if err != nil {
			return err
		}
		sched.start()
		defer func() {
			if err := sched.stop(); err != nil {
				slog.Warn("Failed to stop periodic scheduler", logfields.Error(err))
			}
		}()
	}

	slog.Info("Sync coordinator started",
		slog.Bool("auto_sync", c.st.autoSyncEnabled),
		slog.Int("interval_minutes", c.st.syncIntervalMinutes),
		logfields.Hash(string(c.st.lastSyncedHash)),
		logfields.Remote(c.deps.Remote.Name()))

	c.safely("startup", c.checkForUnsyncedChanges)
	c.publish()
	c.readyOnce.Do(func() { close(c.ready) })

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.changes:
			c.safely("change", func() { c.onChange(ev) })
		case fn := <-c.cmds:
			c.safely("command", fn)
		case <-c.debounce.C():
			c.safely("debounce", c.onDebounceFired)
		case <-c.retryC:
			c.safely("retry", c.onRetryTimer)
		case <-c.ticks:
			c.safely("tick", c.onTick)
		case res := <-c.results:
			c.safely("result", func() { c.onResult(res) })
		}
		c.publish()
	}
}

// Notify feeds a change event into the coordinator. It never blocks; when the
// buffer is full the event is dropped, which is harmless because every event
// triggers the same full fingerprint comparison.
func (c *Coordinator) Notify(ev observer.ChangeEvent) {
	select {
	case c.changes <- ev:
	default:
		slog.Debug("Change event dropped, coordinator busy", logfields.Key(ev.Key))
	}
}

// TriggerPeriodic asks for a periodic check. Ticks coalesce while one is queued.
func (c *Coordinator) TriggerPeriodic() {
	select {
	case c.ticks <- struct{}{}:
	default:
	}
}

// Status returns the latest state snapshot. It never blocks.
func (c *Coordinator) Status() Status {
	s := *c.status.Load()
	s.Message = s.render(c.clock.Now())
	return s
}

// Enable turns automatic sync on and starts a debounce cycle if data changed meanwhile.
func (c *Coordinator) Enable(ctx context.Context) error {
	return c.exec(ctx, func() error {
		if err := c.deps.Settings.SetAutoSyncEnabled(c.ctx, true); err != nil {
			return err
		}
		c.st.autoSyncEnabled = true
		slog.Info("Auto sync enabled")
		c.checkForUnsyncedChanges()
		return nil
	})
}

// Disable turns automatic sync off and clears pending timers. In-flight
// uploads and manual requests still complete.
func (c *Coordinator) Disable(ctx context.Context) error {
	return c.exec(ctx, func() error {
		if err := c.deps.Settings.SetAutoSyncEnabled(c.ctx, false); err != nil {
			return err
		}
		c.st.autoSyncEnabled = false
		c.debounce.cancel()
		if d := c.st.deferred; d != nil {
			c.st.deferred = nil
			if d.Reason == ReasonManual {
				c.requestSync(d)
			}
		}
		if f := c.st.active; f != nil && !f.uploading && f.intent.Reason != ReasonManual {
			c.abandon(f)
		}
		slog.Info("Auto sync disabled")
		return nil
	})
}

// SetInterval sets the periodic sync interval in minutes (1..60).
func (c *Coordinator) SetInterval(ctx context.Context, minutes int) error {
	if err := store.ValidateInterval(minutes); err != nil {
		return err
	}
	return c.exec(ctx, func() error {
		if err := c.deps.Settings.SetSyncInterval(c.ctx, minutes); err != nil {
			return err
		}
		c.st.syncIntervalMinutes = minutes
		slog.Info("Sync interval changed", slog.Int("minutes", minutes))
		return nil
	})
}

// SetFileNamePrefix replaces the label of generated file names; blank restores the default.
func (c *Coordinator) SetFileNamePrefix(ctx context.Context, prefix string) error {
	return c.exec(ctx, func() error {
		if err := c.deps.Settings.SetFileNamePrefix(c.ctx, prefix); err != nil {
			return err
		}
		c.st.fileNamePrefix = filename.Sanitize(prefix)
		return nil
	})
}

// RequestManualSync uploads the current data now (or right after the upload in
// flight) and waits for the final outcome. A non-empty override replaces the
// generated file name.
func (c *Coordinator) RequestManualSync(ctx context.Context, override string) (Outcome, error) {
	hint := ""
	if override != "" {
		name, err := filename.Override(override)
		if err != nil {
			return Outcome{Reason: ReasonManual, Err: err}, err
		}
		hint = name
	}

	done := make(chan Outcome, 1)
	err := c.exec(ctx, func() error {
		c.requestSync(c.newIntent(ReasonManual, "", hint, done))
		return nil
	})
	if err != nil {
		return Outcome{Reason: ReasonManual, Err: err}, err
	}

	select {
	case out := <-done:
		return out, out.Err
	case <-ctx.Done():
		return Outcome{Reason: ReasonManual, Err: ctx.Err()}, ctx.Err()
	}
}

// exec runs fn on the loop goroutine and returns its error.
func (c *Coordinator) exec(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	cmd := func() {
		err := error(ferrors.InternalError("command did not complete").Build())
		defer func() { errc <- err }()
		err = fn()
		c.publish()
	}
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) newIntent(reason Reason, hash fingerprint.Hash, hint string, waiter chan Outcome) *Intent {
	in := &Intent{
		ID:           uuid.NewString(),
		Reason:       reason,
		Hash:         hash,
		RequestedAt:  c.clock.Now(),
		FileNameHint: hint,
	}
	if waiter != nil {
		in.waiters = append(in.waiters, waiter)
	}
	return in
}

// checkForUnsyncedChanges starts a debounce cycle when auto sync is on and
// the data differs from the last confirmed backup.
func (c *Coordinator) checkForUnsyncedChanges() {
	if !c.st.autoSyncEnabled {
		return
	}
	hash, err := c.deps.Fingerprinter.CurrentHash(c.ctx)
	if err != nil {
		slog.Warn("Failed to fingerprint local data", logfields.Error(err))
		return
	}
	if c.unsynced(hash) {
		slog.Info("Local data differs from last backup", logfields.Hash(string(hash)))
		c.debounce.restart()
	}
}

// safely runs a loop handler, converting panics into an internal error and
// returning the coordinator to a resting phase.
func (c *Coordinator) safely(where string, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := ferrors.InternalError(fmt.Sprintf("coordinator panic in %s: %v", where, r)).Build()
		slog.Error("Recovered coordinator panic", slog.String("handler", where), logfields.Error(err))
		c.st.lastError = err
		c.st.phase = PhaseError
		if f := c.st.active; f != nil && !f.uploading && c.retryC == nil {
			c.st.active = nil
			resolve(f.intent, Outcome{IntentID: f.intent.ID, Reason: f.intent.Reason, Attempts: f.attempts,
				CompletedAt: c.clock.Now(), Err: err})
		}
	}()
	fn()
}

func (c *Coordinator) shutdown() {
	slog.Info("Sync coordinator stopping")
	err := ferrors.NewError(ferrors.CategoryRuntime, "coordinator stopped").Build()
	if f := c.st.active; f != nil {
		resolve(f.intent, Outcome{IntentID: f.intent.ID, Reason: f.intent.Reason, Attempts: f.attempts,
			CompletedAt: c.clock.Now(), Err: err})
	}
	for _, in := range []*Intent{c.st.pending, c.st.deferred} {
		if in != nil {
			resolve(in, Outcome{IntentID: in.ID, Reason: in.Reason, CompletedAt: c.clock.Now(), Err: err})
		}
	}
}

// resolve delivers out to every manual caller waiting on in.
func resolve(in *Intent, out Outcome) {
	for _, w := range in.waiters {
		select {
		case w <- out:
		default:
		}
	}
	in.waiters = nil
}
