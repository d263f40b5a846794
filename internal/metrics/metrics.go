// Package metrics provides Prometheus metrics for the voice pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kuber_voice"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Pipeline metrics
	StageLatency  *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec
	PipelineTotal *prometheus.CounterVec

	// Cache metrics
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheEvictions   prometheus.Counter
	CacheCorruptions prometheus.Counter
	CacheExpired     prometheus.Counter

	// Nudge metrics
	Nudges *prometheus.CounterVec

	// Realtime metrics
	SessionsActive     prometheus.Gauge
	SessionsTotal      prometheus.Counter
	Turns              *prometheus.CounterVec
	CommitsRejected    *prometheus.CounterVec
	AudioBytesReceived prometheus.Counter
	AudioLimitExceeded prometheus.Counter

	// Event publish metrics
	EventPublishTotal   *prometheus.CounterVec
	EventPublishErrors  *prometheus.CounterVec
	EventPublishLatency *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Latency of a pipeline stage in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
		StageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Total number of failed pipeline stages",
		}, []string{"stage"}),
		PipelineTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of batch pipeline runs by outcome",
		}, []string{"outcome"}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of result cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of result cache misses",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of entries evicted to stay within capacity",
		}),
		CacheCorruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_corruptions_total",
			Help:      "Total number of cache entries that failed to decode",
		}),
		CacheExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_expired_total",
			Help:      "Total number of expired cache entries removed",
		}),

		Nudges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nudges_total",
			Help:      "Total number of nudges attached to responses",
		}, []string{"kind"}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open realtime sessions",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of realtime sessions opened",
		}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of realtime turns by outcome",
		}, []string{"outcome"}),
		CommitsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_rejected_total",
			Help:      "Total number of commits that did not start a turn",
		}, []string{"reason"}),
		AudioBytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received over realtime sessions",
		}),
		AudioLimitExceeded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_limit_exceeded_total",
			Help:      "Total number of audio chunks rejected by the per-turn byte limit",
		}),

		EventPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Total number of turn events published",
		}, []string{"topic"}),
		EventPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Total number of turn event publish errors",
		}, []string{"topic"}),
		EventPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_publish_latency_seconds",
			Help:      "Turn event publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordStage records the outcome of one pipeline stage.
func (m *Metrics) RecordStage(stage string, elapsed time.Duration, err error) {
	m.StageLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordPipeline records a finished batch pipeline run.
func (m *Metrics) RecordPipeline(outcome string) {
	m.PipelineTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}

// RecordNudge records a nudge of the given kind.
func (m *Metrics) RecordNudge(kind string) {
	m.Nudges.WithLabelValues(kind).Inc()
}

// RecordSessionStart records a realtime session opening.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a realtime session closing.
func (m *Metrics) RecordSessionEnd() {
	m.SessionsActive.Dec()
}

// RecordTurn records a finished realtime turn.
func (m *Metrics) RecordTurn(outcome string) {
	m.Turns.WithLabelValues(outcome).Inc()
}

// RecordCommitRejected records a commit that did not start a turn.
func (m *Metrics) RecordCommitRejected(reason string) {
	m.CommitsRejected.WithLabelValues(reason).Inc()
}

// RecordAudioReceived records inbound audio bytes.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
}

// RecordEventPublish records a turn event publish attempt.
func (m *Metrics) RecordEventPublish(topic string, err error, elapsed time.Duration) {
	m.EventPublishTotal.WithLabelValues(topic).Inc()
	m.EventPublishLatency.WithLabelValues(topic).Observe(elapsed.Seconds())
	if err != nil {
		m.EventPublishErrors.WithLabelValues(topic).Inc()
	}
}
