// Package metrics counts what a run submitted and writes the counters in
// the Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "openai_whisper"

// Segment outcomes.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
)

// Metrics holds one run's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SegmentsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	PayloadBytes    prometheus.Histogram
	AudioSeconds    prometheus.Counter
	LastRunSuccess  prometheus.Gauge
	LastRunTime     prometheus.Gauge
}

// New registers a fresh set of collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SegmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Segments processed, by result.",
		}, []string{"result"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Transcription request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms → ~2m
		}),
		PayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payload_bytes",
			Help:      "Encoded payload size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 7), // 16KB → 64MB
		}),
		AudioSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_seconds_total",
			Help:      "Seconds of audio submitted for transcription.",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run wrote its output, 0 otherwise.",
		}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	m.registry.MustRegister(
		m.SegmentsTotal,
		m.RequestDuration,
		m.PayloadBytes,
		m.AudioSeconds,
		m.LastRunSuccess,
		m.LastRunTime,
	)
	return m
}

// ObserveRequest records one submitted segment.
func (m *Metrics) ObserveRequest(took time.Duration, payloadBytes int, audio time.Duration, err error) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(took.Seconds())
	m.PayloadBytes.Observe(float64(payloadBytes))
	if err != nil {
		m.SegmentsTotal.WithLabelValues(ResultError).Inc()
		return
	}
	m.SegmentsTotal.WithLabelValues(ResultOK).Inc()
	m.AudioSeconds.Add(audio.Seconds())
}

// ObserveDropped records segments removed from the plan for being too short.
func (m *Metrics) ObserveDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SegmentsTotal.WithLabelValues(ResultDropped).Add(float64(n))
}

// Finish stamps the run outcome.
func (m *Metrics) Finish(err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
	m.LastRunTime.SetToCurrentTime()
}

// Gatherer exposes the private registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes all collectors to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
