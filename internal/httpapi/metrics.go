package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"gpuworker/internal/pipeline"
)

const namespace = "gpuworker"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
	)

	pipelineLoadSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "load_seconds",
			Help:      "Time to resolve the model and start the backend",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	pipelineClassifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "classifications_total",
			Help:      "Classifications by predicted label",
		},
		[]string{"label"},
	)

	pipelineErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "errors_total",
			Help:      "Pipeline failures by stage (load, spawn, classify)",
		},
		[]string{"stage"},
	)

	acceleratorAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accelerator_available",
			Help:      "1 when a CUDA accelerator was detected at startup",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal, httpRequestDuration, httpInflight,
		pipelineLoadSeconds, pipelineClassifications, pipelineErrors, acceleratorAvailable,
	)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInflight.Inc()
		defer httpInflight.Dec()

		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		// the route pattern is only known once chi has routed the request
		path := routePatternOrPath(r)
		statusLabel := strconv.Itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, r.Method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// SetAcceleratorAvailable records the startup probe result.
func SetAcceleratorAvailable(ok bool) {
	if ok {
		acceleratorAvailable.Set(1)
		return
	}
	acceleratorAvailable.Set(0)
}

// MetricsPublisher turns pipeline events into Prometheus samples.
type MetricsPublisher struct{}

func (MetricsPublisher) Publish(e pipeline.Event) {
	switch e.Name {
	case pipeline.EventDiagnostics:
		ok, _ := e.Fields["accelerator"].(bool)
		SetAcceleratorAvailable(ok)
	case pipeline.EventLoadReady:
		if s, ok := e.Fields["seconds"].(float64); ok {
			pipelineLoadSeconds.Observe(s)
		}
	case pipeline.EventLoadError:
		pipelineErrors.WithLabelValues("load").Inc()
	case pipeline.EventSpawnExit, pipeline.EventSpawnTimeout:
		pipelineErrors.WithLabelValues("spawn").Inc()
	case pipeline.EventClassify:
		label, _ := e.Fields["label"].(string)
		if label == "" {
			label = "unknown"
		}
		pipelineClassifications.WithLabelValues(label).Inc()
	case pipeline.EventClassifyErr:
		pipelineErrors.WithLabelValues("classify").Inc()
	}
}

var _ pipeline.EventPublisher = MetricsPublisher{}
