// Package metrics exposes Prometheus metrics for the recording writer and its
// storage backends.
//
// A nil *Recorder is valid and records nothing, so components can be built
// without metrics:
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.NewRecorder(reg)
//	file, _ := recording.NewFile(backend, recording.Options{Metrics: rec})
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nwb"

// Stream kinds used as label values.
const (
	KindContinuous = "continuous"
	KindSpike      = "spike"
)

// Recorder holds the writer's metrics.
type Recorder struct {
	framesWritten   prometheus.Counter
	spikesWritten   prometheus.Counter
	eventsWritten   prometheus.Counter
	messagesWritten prometheus.Counter
	writeErrors     *prometheus.CounterVec

	chunksFlushed *prometheus.CounterVec
	chunkBytes    *prometheus.CounterVec

	activeStreams   *prometheus.GaugeVec
	sessionsStarted prometheus.Counter
	sessionStart    prometheus.Histogram
}

// NewRecorder creates the metrics and registers them on reg. Passing nil
// registers on the default Prometheus registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		framesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "continuous_frames_written_total",
			Help:      "Sample frames committed to continuous streams",
		}),
		spikesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spikes_written_total",
			Help:      "Spike waveforms written",
		}),
		eventsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ttl_events_written_total",
			Help:      "TTL events written",
		}),
		messagesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_written_total",
			Help:      "Text messages written",
		}),
		writeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Rejected or failed writes by operation",
		}, []string{"op"}),
		chunksFlushed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_flushed_total",
			Help:      "Dataset chunks handed to the storage backend",
		}, []string{"backend"}),
		chunkBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_total",
			Help:      "Stored chunk payload bytes after compression",
		}, []string{"backend"}),
		activeStreams: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Streams registered in the active recording session",
		}, []string{"kind"}),
		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_sessions_started_total",
			Help:      "Recording sessions started successfully",
		}),
		sessionStart: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_start_duration_seconds",
			Help:      "Time to create the structures of a recording session",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
}

func (r *Recorder) FramesWritten(n int) {
	if r == nil {
		return
	}
	r.framesWritten.Add(float64(n))
}

func (r *Recorder) SpikeWritten() {
	if r == nil {
		return
	}
	r.spikesWritten.Inc()
}

func (r *Recorder) EventWritten() {
	if r == nil {
		return
	}
	r.eventsWritten.Inc()
}

func (r *Recorder) MessageWritten() {
	if r == nil {
		return
	}
	r.messagesWritten.Inc()
}

// WriteError counts a rejected or failed write of op.
func (r *Recorder) WriteError(op string) {
	if r == nil {
		return
	}
	r.writeErrors.WithLabelValues(op).Inc()
}

// ChunkFlushed records a chunk of size bytes stored by backend.
func (r *Recorder) ChunkFlushed(backend string, size int) {
	if r == nil {
		return
	}
	r.chunksFlushed.WithLabelValues(backend).Inc()
	r.chunkBytes.WithLabelValues(backend).Add(float64(size))
}

// SessionStarted records a successful session start.
func (r *Recorder) SessionStarted(continuous, spikes int, took time.Duration) {
	if r == nil {
		return
	}
	r.sessionsStarted.Inc()
	r.sessionStart.Observe(took.Seconds())
	r.activeStreams.WithLabelValues(KindContinuous).Set(float64(continuous))
	r.activeStreams.WithLabelValues(KindSpike).Set(float64(spikes))
}

// SessionStopped clears the active stream gauges.
func (r *Recorder) SessionStopped() {
	if r == nil {
		return
	}
	r.activeStreams.WithLabelValues(KindContinuous).Set(0)
	r.activeStreams.WithLabelValues(KindSpike).Set(0)
}
