// Package metrics exposes the studio's counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dither_studio"

// Reasons a reply is dropped without being applied.
const (
	StaleGeneration = "generation"
	StaleNotPending = "not_pending"
	StaleSection    = "section"
)

// Metrics owns its registry so separate instances never collide. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests            *prometheus.CounterVec
	replies             *prometheus.CounterVec
	staleReplies        *prometheus.CounterVec
	paletteCacheHits    prometheus.Counter
	acceleratedRuns     *prometheus.CounterVec
	acceleratedDuration prometheus.Histogram
	workerFaults        prometheus.Counter
	poolSize            prometheus.Gauge
	liveWorkers         prometheus.Gauge
	imageGeneration     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests sent to workers, by opcode.",
		}, []string{"opcode"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Replies received from workers, by opcode.",
		}, []string{"opcode"}),
		staleReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_replies_total",
			Help:      "Replies dropped because they no longer apply, by reason.",
		}, []string{"reason"}),
		paletteCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "palette_cache_hits_total",
			Help:      "Optimized palette requests answered from the cache.",
		}),
		acceleratedRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accelerated_runs_total",
			Help:      "Dithers run by the accelerated executor, by algorithm.",
		}, []string{"algorithm"}),
		acceleratedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "accelerated_duration_seconds",
			Help:      "Wall time of accelerated dithers.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		workerFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_faults_total",
			Help:      "Workers that stopped and were removed from rotation.",
		}),
		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_size",
			Help:      "Worker slots in the pool.",
		}),
		liveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_workers",
			Help:      "Workers still accepting requests.",
		}),
		imageGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_generation",
			Help:      "Generation id of the current source image.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.replies,
		m.staleReplies,
		m.paletteCacheHits,
		m.acceleratedRuns,
		m.acceleratedDuration,
		m.workerFaults,
		m.poolSize,
		m.liveWorkers,
		m.imageGeneration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(opcode string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(opcode).Inc()
}

func (m *Metrics) RecordReply(opcode string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(opcode).Inc()
}

func (m *Metrics) RecordStale(reason string) {
	if m == nil {
		return
	}
	m.staleReplies.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordPaletteCacheHit() {
	if m == nil {
		return
	}
	m.paletteCacheHits.Inc()
}

func (m *Metrics) RecordAccelerated(algorithm string, d time.Duration) {
	if m == nil {
		return
	}
	m.acceleratedRuns.WithLabelValues(algorithm).Inc()
	m.acceleratedDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordWorkerFault(live int) {
	if m == nil {
		return
	}
	m.workerFaults.Inc()
	m.liveWorkers.Set(float64(live))
}

func (m *Metrics) SetPool(size, live int) {
	if m == nil {
		return
	}
	m.poolSize.Set(float64(size))
	m.liveWorkers.Set(float64(live))
}

func (m *Metrics) SetGeneration(generation uint8) {
	if m == nil {
		return
	}
	m.imageGeneration.Set(float64(generation))
}
