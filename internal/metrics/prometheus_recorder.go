package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memobackup"

// Phases lists every coordinator phase so the phase gauge can be one-hot.
var Phases = []string{"idle", "syncing", "retrying", "error", "synced"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	uploadDuration   *prom.HistogramVec
	uploadResults    *prom.CounterVec
	retries          *prom.CounterVec
	retriesExhausted *prom.CounterVec
	coalesced        prom.Counter
	suppressed       *prom.CounterVec
	phase            *prom.GaugeVec
	lastSuccess      prom.Gauge
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs metrics and registers them with reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		uploadDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Duration of individual upload attempts",
			Buckets:   prom.DefBuckets,
		}, []string{"remote", "result"}),
		uploadResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "upload_attempts_total",
			Help:      "Upload attempts by intent reason and result",
		}, []string{"reason", "result"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Scheduled retries after retryable upload failures",
		}, []string{"reason"}),
		retriesExhausted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Intents that failed after using every attempt",
		}, []string{"reason"}),
		coalesced: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_requests_total",
			Help:      "Sync requests folded into the pending slot while an upload was in flight",
		}),
		suppressed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_triggers_total",
			Help:      "Sync triggers dropped because nothing changed since the last confirmed backup",
		}, []string{"check"}),
		phase: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "Current coordinator phase (1 for the active phase)",
		}, []string{"phase"}),
		lastSuccess: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful backup",
		}),
	}
	reg.MustRegister(pr.uploadDuration, pr.uploadResults, pr.retries, pr.retriesExhausted,
		pr.coalesced, pr.suppressed, pr.phase, pr.lastSuccess)
	return pr
}

// HTTPHandler serves the metrics in reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObserveUploadDuration(remote string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.uploadDuration.WithLabelValues(remote, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncUploadResult(reason string, result ResultLabel) {
	if p == nil {
		return
	}
	p.uploadResults.WithLabelValues(reason, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRetry(reason string) {
	if p == nil {
		return
	}
	p.retries.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncRetryExhausted(reason string) {
	if p == nil {
		return
	}
	p.retriesExhausted.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncCoalesced() {
	if p == nil {
		return
	}
	p.coalesced.Inc()
}

func (p *PrometheusRecorder) IncSuppressed(label SuppressionLabel) {
	if p == nil {
		return
	}
	p.suppressed.WithLabelValues(string(label)).Inc()
}

func (p *PrometheusRecorder) SetPhase(phase string) {
	if p == nil {
		return
	}
	for _, ph := range Phases {
		v := 0.0
		if ph == phase {
			v = 1
		}
		p.phase.WithLabelValues(ph).Set(v)
	}
}

func (p *PrometheusRecorder) SetLastSuccess(t time.Time) {
	if p == nil {
		return
	}
	p.lastSuccess.Set(float64(t.Unix()))
}
