package reporter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsReporter exports run state as Prometheus gauges/counters and
// serves them over /metrics. It never blocks a stage worker: every call
// is a non-blocking metric update.
type MetricsReporter struct {
	filesTotal    *prometheus.CounterVec
	bytesSaved    prometheus.Counter
	encodeSeconds prometheus.Counter
	queueRemain   prometheus.Gauge

	srv *http.Server
}

// NewMetricsReporter registers the collectors against a fresh registry and
// starts an HTTP server on addr. Call Shutdown to stop it.
func NewMetricsReporter(addr string) *MetricsReporter {
	reg := prometheus.NewRegistry()
	m := &MetricsReporter{
		filesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_files_total",
			Help: "Files reaching a terminal stage outcome, by status.",
		}, []string{"status"}),
		bytesSaved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pipeline_bytes_saved_total",
			Help: "Cumulative bytes saved by re-encoding (source size minus output size).",
		}),
		encodeSeconds: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pipeline_encode_seconds_total",
			Help: "Cumulative wall-clock seconds spent encoding.",
		}),
		queueRemain: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_queue_remaining",
			Help: "Work items not yet in a terminal status.",
		}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	m.srv = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Intentionally quiet: a failed metrics listener must not
			// interrupt the pipeline run.
			_ = err
		}
	}()
	return m
}

// Shutdown stops the metrics HTTP server, waiting up to 5s for in-flight
// scrapes to finish.
func (m *MetricsReporter) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}

// SetQueueRemaining sets the queue-depth gauge directly. Nothing in the
// pipeline calls it; the gauge is otherwise updated by BatchSummary.
func (m *MetricsReporter) SetQueueRemaining(n int) {
	m.queueRemain.Set(float64(n))
}

func (m *MetricsReporter) Info(path, msg string)    {}
func (m *MetricsReporter) Warning(path, msg string) {}
func (m *MetricsReporter) Error(path, msg string)   { m.filesTotal.WithLabelValues("error").Inc() }
func (m *MetricsReporter) Progress(path, stage string, fraction float64) {}

func (m *MetricsReporter) FileComplete(path string, outcome FileOutcome) {
	m.filesTotal.WithLabelValues(outcome.Stage).Inc()
	if outcome.Saved > 0 {
		m.bytesSaved.Add(float64(outcome.Saved))
	}
	m.encodeSeconds.Add(outcome.Elapsed.Seconds())
}

func (m *MetricsReporter) BatchSummary(s BatchSummary) {
	m.queueRemain.Set(float64(s.Total - s.Completed - s.Skipped - s.Errors))
}
