package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	extractionsTotal   *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	analysesTotal      *prometheus.CounterVec
	analysisDuration   *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aspor",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aspor",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aspor",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	extractionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aspor",
			Subsystem: "runs",
			Name:      "extractions_total",
			Help:      "Total extraction triggers by outcome and method.",
		},
		[]string{"service", "outcome", "method"},
	)
	extractionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aspor",
			Subsystem: "runs",
			Name:      "extraction_duration_seconds",
			Help:      "Synchronous extraction attempt duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"service", "outcome"},
	)
	analysesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aspor",
			Subsystem: "runs",
			Name:      "analyses_total",
			Help:      "Total analysis triggers by prompt variant and outcome.",
		},
		[]string{"service", "variant", "outcome"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aspor",
			Subsystem: "runs",
			Name:      "analysis_duration_seconds",
			Help:      "Synchronous analysis attempt duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 25, 30},
		},
		[]string{"service", "variant"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		extractionsTotal,
		extractionDuration,
		analysesTotal,
		analysisDuration,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		extractionsTotal:   extractionsTotal,
		extractionDuration: extractionDuration,
		analysesTotal:      analysesTotal,
		analysisDuration:   analysisDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses per-run URLs so metric cardinality stays bounded.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/v1/users/") {
		return path
	}
	rest := strings.TrimPrefix(path, "/v1/users/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "runs":
		return "/v1/users/{user_id}/runs"
	case len(parts) == 3 && parts[1] == "runs":
		return "/v1/users/{user_id}/runs/{run_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordExtraction(service, outcome, method string, duration time.Duration) {
	if outcome == "" {
		outcome = "failed"
	}
	if method == "" {
		method = "none"
	}
	m.extractionsTotal.WithLabelValues(service, outcome, method).Inc()
	m.extractionDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordAnalysis(service, variant, outcome string, duration time.Duration) {
	if variant == "" {
		variant = "unknown"
	}
	if outcome == "" {
		outcome = "failed"
	}
	m.analysesTotal.WithLabelValues(service, variant, outcome).Inc()
	m.analysisDuration.WithLabelValues(service, variant).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
