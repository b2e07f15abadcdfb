package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ttyflow/backend/internal/flow"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Flow engine metrics, aggregated across sessions
	FlushesTotal        prometheus.Counter
	FlushedChunks       prometheus.Counter
	FlushedBytes        prometheus.Counter
	FramesDropped       prometheus.Counter
	LinesEvicted        prometheus.Counter
	RendererWriteErrors prometheus.Counter

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	StreamsActive  prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the metrics collector registered against reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FlushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttyflow_flushes_total",
			Help: "Total number of completed engine flushes",
		}),
		FlushedChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttyflow_flushed_chunks_total",
			Help: "Total number of output chunks flushed to renderers",
		}),
		FlushedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttyflow_flushed_bytes_total",
			Help: "Total bytes written to renderers",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttyflow_frames_dropped_total",
			Help: "Scheduled flushes discarded because no renderer was available",
		}),
		LinesEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttyflow_scrollback_lines_evicted_total",
			Help: "Scrollback lines evicted under the high-water-mark policy",
		}),
		RendererWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttyflow_renderer_write_errors_total",
			Help: "Renderer segment writes that failed and were skipped",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ttyflow_sessions_active",
			Help: "Number of live PTY sessions",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttyflow_sessions_total",
			Help: "Total number of PTY sessions created",
		}),
		StreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ttyflow_streams_active",
			Help: "Number of attached renderer streams",
		}),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttyflow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ttyflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
	}
}

// Observer returns a flow.Observer that feeds engine events into these
// metrics. One observer serves any number of engines.
func (m *Metrics) Observer() flow.Observer {
	return engineObserver{m}
}

type engineObserver struct {
	m *Metrics
}

func (o engineObserver) FlushCompleted(chunks, bytes int) {
	o.m.FlushesTotal.Inc()
	o.m.FlushedChunks.Add(float64(chunks))
	o.m.FlushedBytes.Add(float64(bytes))
}

func (o engineObserver) FrameDropped() {
	o.m.FramesDropped.Inc()
}

func (o engineObserver) LinesEvicted(lines uint32) {
	o.m.LinesEvicted.Add(float64(lines))
}

func (o engineObserver) WriteError() {
	o.m.RendererWriteErrors.Inc()
}
