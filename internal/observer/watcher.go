package observer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
)

// Watcher reports writes to a store file made by other processes, such as
// side-channel imports. It emits Modified events with an empty key; the
// consumer decides through fingerprinting whether anything really changed.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	sink    Sink
}

// NewWatcher watches the directory containing path.
func NewWatcher(path string, sink Sink) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "resolve store path").Build()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "create file watcher").Build()
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		_ = fw.Close()
		return nil, errors.WrapError(err, errors.CategoryFileSystem, fmt.Sprintf("watch directory %s", filepath.Dir(absPath))).Build()
	}
	return &Watcher{path: absPath, watcher: fw, sink: sink}, nil
}

// Run forwards relevant events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			slog.Error("Error closing store watcher", logfields.Error(err))
		}
	}()

	slog.Info("Watching store for external changes", logfields.Path(w.path))
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("Store file change detected", logfields.Path(event.Name), logfields.Op(event.Op.String()))
			w.emit()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Store watcher error", logfields.Error(err))
		}
	}
}

// matches accepts the database file and its SQLite sidecars (-wal, -journal).
func (w *Watcher) matches(name string) bool {
	base := filepath.Base(w.path)
	got := filepath.Base(name)
	return got == base || strings.HasPrefix(got, base+"-")
}

func (w *Watcher) emit() {
	if w.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Change sink panicked", logfields.Panic(r))
		}
	}()
	w.sink(ChangeEvent{Kind: Modified, ObservedAt: time.Now()})
}
