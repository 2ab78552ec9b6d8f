// Package metrics exposes Prometheus collectors for the crawl engine.
// There is no HTTP listener here: a process embedding this package wires
// Handler into whatever server it already runs, or scrapes via a
// pushgateway. Collectors are registered once via sync.Once/promauto and
// labeled for page outcomes, rate control, and checkpointing.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal           *prometheus.CounterVec
	bytesTotal            prometheus.Counter
	keywordHitsTotal       prometheus.Counter
	activeWorkers          prometheus.Gauge
	targetWorkers          prometheus.Gauge
	requestDelaySeconds    prometheus.Gauge
	fetchDurationSeconds  *prometheus.HistogramVec
	checkpointSavesTotal  *prometheus.CounterVec
	frontierDepth          prometheus.Gauge

	once sync.Once
)

// Init registers every collector. Safe to call more than once.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of page fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		bytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total bytes of HTML processed across all fetched pages.",
			},
		)

		keywordHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_keyword_hits_total",
				Help: "Total number of keyword matches found across all pages.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of worker goroutines currently live in the pool.",
			},
		)

		targetWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_target_workers",
				Help: "Worker count currently published by the rate controller.",
			},
		)

		requestDelaySeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_request_delay_seconds",
				Help: "Per-request delay currently published by the rate controller.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of page render durations, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		)

		checkpointSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_checkpoint_saves_total",
				Help: "Total number of checkpoint saves, labeled by kind (periodic, progress, emergency).",
			},
			[]string{"kind"},
		)

		frontierDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_frontier_depth",
				Help: "Number of URLs currently queued in the frontier.",
			},
		)
	})
}

// Handler exposes the registered collectors for a caller that already runs
// an HTTP server to mount. The engine itself never listens on a socket.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one page fetch outcome and its duration.
func ObserveFetch(outcome string, duration time.Duration, htmlBytes int) {
	pagesTotal.WithLabelValues(outcome).Inc()
	fetchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
	if htmlBytes > 0 {
		bytesTotal.Add(float64(htmlBytes))
	}
}

// ObserveKeywordHits adds n to the running keyword-hit counter.
func ObserveKeywordHits(n int) {
	if n > 0 {
		keywordHitsTotal.Add(float64(n))
	}
}

// SetWorkerCounts publishes the live and target worker counts.
func SetWorkerCounts(active, target int) {
	activeWorkers.Set(float64(active))
	targetWorkers.Set(float64(target))
}

// SetRequestDelay publishes the controller's current per-request delay.
func SetRequestDelay(d time.Duration) {
	requestDelaySeconds.Set(d.Seconds())
}

// SetFrontierDepth publishes the current frontier queue length.
func SetFrontierDepth(n int) {
	frontierDepth.Set(float64(n))
}

// ObserveCheckpointSave increments the checkpoint counter for kind, one of
// "periodic", "progress", or "emergency".
func ObserveCheckpointSave(kind string) {
	checkpointSavesTotal.WithLabelValues(kind).Inc()
}
