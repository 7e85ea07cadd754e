// Package metrics exposes prometheus collectors for connect calls, the response cache,
// PAC resolution and downloads. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pkgconnect"

// Metrics groups the collectors of one client.
type Metrics struct {
	CallsTotal        *prometheus.CounterVec
	CallDuration      *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	StaleStatusServed prometheus.Counter
	PACResults        *prometheus.CounterVec
	DownloadsTotal    *prometheus.CounterVec
	DownloadBytes     prometheus.Counter
	DownloadsActive   prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Connect server calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		CallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Latency of connect server calls that reached the network.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by operation and result (hit or miss).",
		}, []string{"operation", "result"}),
		StaleStatusServed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_status_served_total",
			Help:      "Subscription status requests answered from the last good copy.",
		}),
		PACResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pac_results_total",
			Help:      "PAC resolutions by result.",
		}, []string{"result"}),
		DownloadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished package downloads by outcome.",
		}, []string{"outcome"}),
		DownloadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written by package downloads.",
		}),
		DownloadsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_active",
			Help:      "Package downloads currently running.",
		}),
	}
}

// ObserveCall records a connect call outcome. A zero duration is not observed.
func (m *Metrics) ObserveCall(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(operation, outcome).Inc()
	if d > 0 {
		m.CallDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(operation string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(operation, result).Inc()
}

// StaleStatus records a stale status answer.
func (m *Metrics) StaleStatus() {
	if m == nil {
		return
	}
	m.StaleStatusServed.Inc()
}

// PACResult records a PAC resolution result.
func (m *Metrics) PACResult(result string) {
	if m == nil {
		return
	}
	m.PACResults.WithLabelValues(result).Inc()
}

// DownloadStarted increments the active downloads gauge.
func (m *Metrics) DownloadStarted() {
	if m == nil {
		return
	}
	m.DownloadsActive.Inc()
}

// DownloadFinished decrements the active gauge and records the outcome.
func (m *Metrics) DownloadFinished(outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.DownloadsActive.Dec()
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.DownloadBytes.Add(float64(bytes))
	}
}
