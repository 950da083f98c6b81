// Package daemon assembles the memo store, sync coordinator, remote client and
// admin API into the long-running backup process.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/memobackup/internal/api"
	"git.home.luguber.info/inful/memobackup/internal/config"
	"git.home.luguber.info/inful/memobackup/internal/coordinator"
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

// Options adjust how a Daemon is assembled.
type Options struct {
	// Serve starts the admin API. One-shot commands leave it off.
	Serve bool
	// Remote replaces the client built from configuration.
	Remote remote.Client
}

// Daemon owns every long-lived component. Build it with New and release it with Close.
type Daemon struct {
	cfg      *config.Config
	lock     *dataDirLock
	kv       *store.SQLiteStore
	memos    *observer.Store
	selector store.Selector
	remote   remote.Client
	bus      *events.Bus
	registry *prometheus.Registry
	coord    *coordinator.Coordinator
	api      *api.Server
	watcher  *observer.Watcher

	ready     chan struct{}
	closeOnce sync.Once
}

// New locks the data directory, opens the store and wires the coordinator.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if err := os.MkdirAll(cfg.Daemon.DataDir, 0o750); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create data directory").
			WithContext("path", cfg.Daemon.DataDir).
			Build()
	}
	lock, err := acquireLock(cfg.Daemon.DataDir)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		lock:     lock,
		selector: store.Selector{Keys: cfg.Sync.Keys, Prefixes: cfg.Sync.KeyPrefixes},
		bus:      events.NewBus(),
		ready:    make(chan struct{}),
	}
	if err := d.build(opts); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) build(opts Options) error {
	kv, err := store.NewSQLiteStore(d.cfg.Store.Path)
	if err != nil {
		return err
	}
	d.kv = kv

	d.remote = opts.Remote
	if d.remote == nil {
		if d.remote, err = remote.New(d.cfg.Remote); err != nil {
			return err
		}
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if d.cfg.Metrics.Enabled {
		d.registry = prometheus.NewRegistry()
		d.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheusRecorder(d.registry)
	}

	coord, err := coordinator.New(coordinator.Deps{
		Fingerprinter: fingerprint.New(kv, d.selector),
		Remote:        d.remote,
		Settings:      store.NewSettingsStore(kv),
		Names:         filename.NewGenerator(d.cfg.Sync.Label, nil),
		Bus:           d.bus,
		Recorder:      recorder,
	}, coordinator.Options{
		DebounceWindow: d.cfg.Sync.DebounceWindow,
		TickInterval:   d.cfg.Sync.TickInterval,
		Retry:          retry.NewPolicy(d.cfg.Retry),
	})
	if err != nil {
		return err
	}
	d.coord = coord
	d.memos = observer.New(kv, d.selector, coord.Notify)

	if d.cfg.Sync.WatchExternal {
		if d.watcher, err = observer.NewWatcher(kv.Path(), coord.Notify); err != nil {
			return err
		}
	}

	if opts.Serve {
		srvCfg := api.Config{
			Addr:        d.cfg.Daemon.AdminAddr,
			Coordinator: coord,
			Remote:      d.remote,
			Memos:       d.memos,
			Selector:    d.selector,
			Bus:         d.bus,
		}
		if d.registry != nil {
			srvCfg.Metrics = metrics.HTTPHandler(d.registry)
		}
		d.api = api.NewServer(srvCfg)
	}
	return nil
}

// Coordinator exposes the sync coordinator.
func (d *Daemon) Coordinator() *coordinator.Coordinator { return d.coord }

// Memos is the observed store; writes through it trigger change-driven syncs.
func (d *Daemon) Memos() store.Store { return d.memos }

// Bus is the in-process event bus.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// Ready is closed once Run has started every component.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// AdminAddr is the bound admin API address once Ready is closed, empty when not serving.
func (d *Daemon) AdminAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.Addr
}

// Run starts every component and blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.Info("Starting memobackup daemon",
		slog.String("store", d.cfg.Store.Path),
		logfields.Remote(d.remote.Name()),
		slog.Bool("watch_external", d.watcher != nil))

	var wg sync.WaitGroup
	coordErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		coordErr <- d.coord.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logStatusChanges(ctx, d.bus)
	}()

	if d.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.watcher.Run(ctx)
		}()
	}

	if d.api != nil {
		if err := d.api.Start(); err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}

	go d.probeRemote(ctx)
	close(d.ready)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-coordErr:
		cancel()
	}

	if d.api != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.api.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Admin API shutdown failed", logfields.Error(err))
		}
		stop()
	}
	wg.Wait()
	slog.Info("Memobackup daemon stopped")
	return runErr
}

// probeRemote logs whether the remote is usable, so misconfiguration shows up at startup.
func (d *Daemon) probeRemote(ctx context.Context) {
	if err := d.remote.Check(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Warn("Remote is not reachable yet", logfields.Remote(d.remote.Name()), logfields.Error(err))
		return
	}
	slog.Info("Remote is reachable", logfields.Remote(d.remote.Name()))
}

// SyncOnce runs the coordinator just long enough to perform one manual sync.
func (d *Daemon) SyncOnce(ctx context.Context, override string) (coordinator.Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.coord.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case <-d.coord.Ready():
	case err := <-done:
		return coordinator.Outcome{Err: err}, err
	case <-ctx.Done():
		return coordinator.Outcome{Err: ctx.Err()}, ctx.Err()
	}
	return d.coord.RequestManualSync(ctx, override)
}

// Close releases the store, remote and data directory lock.
func (d *Daemon) Close() error {
	var errs []error
	d.closeOnce.Do(func() {
		if d.remote != nil {
			errs = append(errs, remote.Close(d.remote))
		}
		if d.kv != nil {
			errs = append(errs, d.kv.Close())
		}
		d.bus.Close()
		if d.lock != nil {
			errs = append(errs, d.lock.release())
		}
	})
	return errors.Join(errs...)
}
