package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveUploadDuration("dir", 150*time.Millisecond, true)
	pr.IncUploadResult("auto", ResultSuccess)
	pr.IncUploadResult("auto", ResultRetryable)
	pr.IncUploadResult("auto", ResultRetryable)
	pr.IncRetry("auto")
	pr.IncRetryExhausted("periodic")
	pr.IncCoalesced()
	pr.IncCoalesced()
	pr.IncSuppressed(SuppressedDebounce)
	pr.SetPhase("syncing")
	pr.SetPhase("synced")
	pr.SetLastSuccess(time.Unix(1_700_000_000, 0))

	require.InDelta(t, 2, value(t, pr.uploadResults.WithLabelValues("auto", "retryable")), 0)
	require.InDelta(t, 2, value(t, pr.coalesced), 0)
	require.InDelta(t, 1, value(t, pr.suppressed.WithLabelValues("debounce")), 0)
	require.InDelta(t, 1, value(t, pr.phase.WithLabelValues("synced")), 0)
	require.InDelta(t, 0, value(t, pr.phase.WithLabelValues("syncing")), 0)
	require.InDelta(t, 1_700_000_000, value(t, pr.lastSuccess), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}

func value(t *testing.T, m prom.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestPrometheusRecorderNilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	require.NotPanics(t, func() {
		pr.ObserveUploadDuration("dir", time.Second, false)
		pr.IncUploadResult("manual", ResultTerminal)
		pr.IncRetry("manual")
		pr.IncRetryExhausted("manual")
		pr.IncCoalesced()
		pr.IncSuppressed(SuppressedEvent)
		pr.SetPhase("idle")
		pr.SetLastSuccess(time.Now())
	})
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	require.NotPanics(t, func() {
		r.IncCoalesced()
		r.SetPhase("error")
	})
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncCoalesced()

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "memobackup_coalesced_requests_total 1")
}
