package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/memobackup/internal/coordinator"
	"git.home.luguber.info/inful/memobackup/internal/events"
	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/store"
)

type fakeCoordinator struct {
	mu       sync.Mutex
	status   coordinator.Status
	override string
	syncErr  error
}

func (f *fakeCoordinator) Status() coordinator.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeCoordinator) RequestManualSync(_ context.Context, override string) (coordinator.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.override = override
	if f.syncErr != nil {
		return coordinator.Outcome{Err: f.syncErr}, f.syncErr
	}
	name := override
	if name == "" {
		name = "memo-calendar-manual-2024-01-01-000000.json"
	}
	return coordinator.Outcome{IntentID: "i-1", Success: true, FileName: name, Hash: "abc", Attempts: 1}, nil
}

func (f *fakeCoordinator) Enable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.AutoSyncEnabled = true
	return nil
}

func (f *fakeCoordinator) Disable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.AutoSyncEnabled = false
	return nil
}

func (f *fakeCoordinator) SetInterval(_ context.Context, minutes int) error {
	if err := store.ValidateInterval(minutes); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.SyncIntervalMinutes = minutes
	return nil
}

func (f *fakeCoordinator) SetFileNamePrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.FileNamePrefix = prefix
	return nil
}

type fakeChecker struct{ err error }

func (f fakeChecker) Check(context.Context) error { return f.err }
func (f fakeChecker) Name() string                { return "fake" }

func newTestServer(t *testing.T, coord *fakeCoordinator, checker RemoteChecker) (*Server, *store.MemoryStore, *httptest.Server) {
	t.Helper()
	memos := store.NewMemoryStore()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	srv := NewServer(Config{
		Addr:        "127.0.0.1:0",
		Coordinator: coord,
		Remote:      checker,
		Memos:       memos,
		Selector:    store.Selector{Prefixes: []string{"memo."}},
		Bus:         bus,
		Metrics:     http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("metrics")) }),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, memos, ts
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeCoordinator{}, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestMetricsMounted(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeCoordinator{}, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, "metrics", w.Body.String())
}

func TestClientRoundTrip(t *testing.T) {
	coord := &fakeCoordinator{status: coordinator.Status{Phase: coordinator.PhaseSynced, SyncIntervalMinutes: 5}}
	_, _, ts := newTestServer(t, coord, fakeChecker{})
	client := NewClient(ts.URL)
	ctx := context.Background()

	st, err := client.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, coordinator.PhaseSynced, st.Phase)

	out, err := client.Sync(ctx, "nightly.json")
	require.NoError(t, err)
	require.Equal(t, "nightly.json", out.FileName)
	require.Equal(t, "nightly.json", coord.override)

	st, err = client.SetAutoSync(ctx, true)
	require.NoError(t, err)
	require.True(t, st.AutoSyncEnabled)
	st, err = client.SetAutoSync(ctx, false)
	require.NoError(t, err)
	require.False(t, st.AutoSyncEnabled)

	st, err = client.SetInterval(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 10, st.SyncIntervalMinutes)

	_, err = client.SetInterval(ctx, 0)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	st, err = client.SetPrefix(ctx, "work")
	require.NoError(t, err)
	require.Equal(t, "work", st.FileNamePrefix)

	check, err := client.CheckRemote(ctx)
	require.NoError(t, err)
	require.True(t, check.Connected)
}

func TestSyncErrorsKeepCategory(t *testing.T) {
	coord := &fakeCoordinator{syncErr: ferrors.AuthError("token revoked").Build()}
	_, _, ts := newTestServer(t, coord, fakeChecker{err: ferrors.NetworkError("unreachable").Build()})
	client := NewClient(ts.URL)

	_, err := client.Sync(context.Background(), "")
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryAuth))

	_, err = client.CheckRemote(context.Background())
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNetwork))
}

func TestUnreachableDaemon(t *testing.T) {
	_, err := NewClient("127.0.0.1:1").Status(context.Background())
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryDaemon))
}

func TestMemoEndpoints(t *testing.T) {
	_, memos, ts := newTestServer(t, &fakeCoordinator{}, nil)
	ctx := context.Background()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, ts.URL+"/api/memos/memo.2024-05-01", strings.NewReader("buy milk"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	v, err := memos.Get(ctx, "memo.2024-05-01")
	require.NoError(t, err)
	require.Equal(t, "buy milk", string(v))

	require.NoError(t, memos.Set(ctx, "settings.autoSyncEnabled", []byte("true")))
	resp, err = http.Get(ts.URL + "/api/memos")
	require.NoError(t, err)
	var list struct {
		Data []Memo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	_ = resp.Body.Close()
	require.Equal(t, []Memo{{Key: "memo.2024-05-01", Value: "buy milk"}}, list.Data)

	req, err = http.NewRequestWithContext(ctx, http.MethodPut, ts.URL+"/api/memos/settings.autoSyncEnabled", strings.NewReader("false"))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/memos/memo.missing")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	req, err = http.NewRequestWithContext(ctx, http.MethodDelete, ts.URL+"/api/memos", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	keys, err := memos.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"settings.autoSyncEnabled"}, keys)
}

func TestEventStreamSendsStatus(t *testing.T) {
	coord := &fakeCoordinator{status: coordinator.Status{Phase: coordinator.PhaseIdle}}
	srv, _, ts := newTestServer(t, coord, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return events.SubscriberCount[events.StatusChanged](srv.cfg.Bus) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, srv.cfg.Bus.Publish(ctx, events.StatusChanged{Phase: "syncing", At: time.Now()}))

	buf := make([]byte, 4096)
	var got strings.Builder
	for !strings.Contains(got.String(), "event: status") {
		n, err := resp.Body.Read(buf)
		require.NoError(t, err)
		got.Write(buf[:n])
	}
	require.Contains(t, got.String(), "event: connected")
	require.Contains(t, got.String(), `"Phase":"syncing"`)
}

func TestShutdownEndsEventStreams(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeCoordinator{status: coordinator.Status{Phase: coordinator.PhaseIdle}}, nil)
	require.NoError(t, srv.Start())

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://"+srv.Addr+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Eventually(t, func() bool {
		return events.SubscriberCount[events.StatusChanged](srv.cfg.Bus) == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, srv.Shutdown(ctx))
	require.Less(t, time.Since(start), 2*time.Second)

	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Zero(t, events.SubscriberCount[events.StatusChanged](srv.cfg.Bus))
}
