package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the counters shared by the orchestrator and the
// derivative pipeline.
type Metrics struct {
	UploadsTotal    *prometheus.CounterVec
	EnqueueFailures prometheus.Counter
	RequestDuration *prometheus.HistogramVec

	JobsProcessed prometheus.Counter
	JobsRetried   prometheus.Counter
	JobsFailed    prometheus.Counter
}

// NewMetrics registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry so parallel tests never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filevault_uploads_total",
			Help: "Files created, by kind.",
		}, []string{"kind"}),
		EnqueueFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "filevault_enqueue_failures_total",
			Help: "Derivative jobs that could not be enqueued after a metadata commit.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filevault_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "code"}),
		JobsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "filevault_jobs_processed_total",
			Help: "Derivative jobs completed.",
		}),
		JobsRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "filevault_jobs_retried_total",
			Help: "Transient derivative failures sent back for retry.",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "filevault_jobs_failed_total",
			Help: "Derivative jobs failed permanently.",
		}),
	}
}

// StartMetricsServer serves /metrics and /health on addr.
func StartMetricsServer(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}
