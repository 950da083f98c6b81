package observer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/memobackup/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *recorder) sink(ev ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

var memoSelector = store.Selector{Prefixes: []string{"memo."}}

func TestSetEmitsOnlyOnChange(t *testing.T) {
	ctx := t.Context()
	rec := &recorder{}
	obs := New(store.NewMemoryStore(), memoSelector, rec.sink)

	require.NoError(t, obs.Set(ctx, "memo.a", []byte("one")))
	require.NoError(t, obs.Set(ctx, "memo.a", []byte("one")))
	require.NoError(t, obs.Set(ctx, "memo.a", []byte("two")))
	require.NoError(t, obs.Set(ctx, "theme", []byte("dark")))

	require.Equal(t, []Kind{Modified, Modified}, rec.kinds())
	require.Equal(t, "memo.a", rec.events[0].Key)
	require.False(t, rec.events[0].ObservedAt.IsZero())
}

func TestSetEmptyValueOnNewKeyEmits(t *testing.T) {
	rec := &recorder{}
	obs := New(store.NewMemoryStore(), memoSelector, rec.sink)

	require.NoError(t, obs.Set(t.Context(), "memo.a", []byte{}))
	require.Equal(t, []Kind{Modified}, rec.kinds())
}

func TestRemoveEmitsOnlyForExistingKeys(t *testing.T) {
	ctx := t.Context()
	rec := &recorder{}
	inner := store.NewMemoryStore()
	require.NoError(t, inner.Set(ctx, "memo.a", []byte("x")))
	obs := New(inner, memoSelector, rec.sink)

	require.NoError(t, obs.Remove(ctx, "memo.missing"))
	require.NoError(t, obs.Remove(ctx, "memo.a"))
	require.NoError(t, obs.Remove(ctx, "memo.a"))

	require.Equal(t, []Kind{Removed}, rec.kinds())
}

func TestClearAllEmitsWhenRelevantDataExisted(t *testing.T) {
	ctx := t.Context()
	rec := &recorder{}
	inner := store.NewMemoryStore()
	obs := New(inner, memoSelector, rec.sink)

	require.NoError(t, inner.Set(ctx, "theme", []byte("dark")))
	require.NoError(t, obs.ClearAll(ctx))
	require.Empty(t, rec.kinds())

	require.NoError(t, inner.Set(ctx, "memo.a", []byte("x")))
	require.NoError(t, obs.ClearAll(ctx))
	require.Equal(t, []Kind{ClearedAll}, rec.kinds())
	require.Empty(t, rec.events[0].Key)
}

func TestClearAllKeepsSettings(t *testing.T) {
	ctx := t.Context()
	rec := &recorder{}
	inner := store.NewMemoryStore()
	obs := New(inner, memoSelector, rec.sink)

	require.NoError(t, inner.Set(ctx, store.KeyAutoSyncEnabled, []byte("false")))
	require.NoError(t, inner.Set(ctx, store.KeyLastSyncedHash, []byte("0123456789abcdef")))
	require.NoError(t, inner.Set(ctx, "memo.a", []byte("x")))
	require.NoError(t, inner.Set(ctx, "theme", []byte("dark")))

	require.NoError(t, obs.ClearAll(ctx))
	require.Equal(t, []Kind{ClearedAll}, rec.kinds())

	keys, err := inner.Keys(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{store.KeyAutoSyncEnabled, store.KeyLastSyncedHash}, keys)

	saved, err := store.NewSettingsStore(inner).Load(ctx)
	require.NoError(t, err)
	require.False(t, saved.AutoSyncEnabled)
	require.Equal(t, "0123456789abcdef", saved.LastSyncedHash)
}

type failingStore struct {
	*store.MemoryStore
}

var errBoom = errors.New("disk full")

func (f failingStore) Set(context.Context, string, []byte) error { return errBoom }

func TestFailedWriteReturnsErrorWithoutEvent(t *testing.T) {
	rec := &recorder{}
	obs := New(failingStore{store.NewMemoryStore()}, memoSelector, rec.sink)

	err := obs.Set(t.Context(), "memo.a", []byte("x"))
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, rec.kinds())
}

func TestPanickingSinkDoesNotBreakWrites(t *testing.T) {
	obs := New(store.NewMemoryStore(), memoSelector, func(ChangeEvent) { panic("sink exploded") })

	require.NotPanics(t, func() {
		require.NoError(t, obs.Set(t.Context(), "memo.a", []byte("x")))
	})
	v, err := obs.Get(t.Context(), "memo.a")
	require.NoError(t, err)
	require.Equal(t, "x", string(v))
}

func TestNilSink(t *testing.T) {
	obs := New(store.NewMemoryStore(), memoSelector, nil)
	require.NoError(t, obs.Set(t.Context(), "memo.a", []byte("x")))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "modified", Modified.String())
	require.Equal(t, "removed", Removed.String())
	require.Equal(t, "cleared_all", ClearedAll.String())
	require.Equal(t, "kind(9)", Kind(9).String())
}

func TestWatcherReportsExternalWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memos.db")
	require.NoError(t, os.WriteFile(path, []byte("initial"), 0o600))

	events := make(chan ChangeEvent, 16)
	w, err := NewWatcher(path, func(ev ChangeEvent) {
		select {
		case events <- ev:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o600))

	select {
	case ev := <-events:
		require.Equal(t, Modified, ev.Kind)
		require.Empty(t, ev.Key)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change event for the store file")
	}
}

func TestWatcherMatchesSidecars(t *testing.T) {
	w := &Watcher{path: "/data/memos.db"}
	require.True(t, w.matches("/data/memos.db"))
	require.True(t, w.matches("/data/memos.db-wal"))
	require.False(t, w.matches("/data/memos.dbx"))
	require.False(t, w.matches("/data/other.db"))
}
