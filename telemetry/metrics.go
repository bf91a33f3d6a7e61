// Package telemetry provides Prometheus metrics and tracing setup for the
// recording and transcription pipeline.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ProbesTotal             prometheus.Counter
	ProbeErrors             prometheus.Counter
	RecordingsStarted       prometheus.Counter
	RecordingsSucceeded     prometheus.Counter
	RecordingsFailed        prometheus.Counter
	TranscriptionsSucceeded prometheus.Counter
	TranscriptionsFailed    prometheus.Counter

	// Histograms (seconds)
	RecordDuration     prometheus.Observer
	TranscribeDuration prometheus.Observer

	// Gauges
	SupervisorsGauge prometheus.Gauge
	RecordingGauge   prometheus.Gauge // supervisors currently in the Recording state
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ProbesTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_probes_total", Help: "Number of live-status probes performed"})
		ProbeErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_probe_errors_total", Help: "Number of probes that failed transiently"})
		RecordingsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_recordings_started_total", Help: "Number of captures started"})
		RecordingsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_recordings_succeeded_total", Help: "Number of captures completed"})
		RecordingsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_recordings_failed_total", Help: "Number of captures that failed fatally"})
		TranscriptionsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_transcriptions_succeeded_total", Help: "Number of transcripts written"})
		TranscriptionsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_transcriptions_failed_total", Help: "Number of transcription pipeline failures"})
		RecordDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "scribe_record_duration_seconds", Help: "Capture duration seconds", Buckets: prometheus.ExponentialBuckets(10, 2, 12)})
		TranscribeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "scribe_transcribe_duration_seconds", Help: "Transcription pipeline duration seconds", Buckets: prometheus.ExponentialBuckets(1, 2, 14)})
		SupervisorsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "scribe_supervisors", Help: "Number of running streamer supervisors"})
		RecordingGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "scribe_recording_active", Help: "Supervisors currently recording"})
	})
}

// SetSupervisors records the number of running supervisors.
func SetSupervisors(n int) {
	if SupervisorsGauge != nil {
		SupervisorsGauge.Set(float64(n))
	}
}

// RecordingActive adjusts the active-recording gauge by delta.
func RecordingActive(delta float64) {
	if RecordingGauge != nil {
		RecordingGauge.Add(delta)
	}
}
