package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

const (
	audienceVendor = "vendor"
	audiencePublic = "public"
)

// Metrics owns the Prometheus registry and the HTTP request collectors.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadBytes     *prometheus.HistogramVec
}

// NewMetrics initialises the registry with request metrics, price sheet
// upload sizes and the Go and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vzcourier_http_requests_total",
		Help: "HTTP requests by route, status code and whether a vendor id was sent.",
	}, []string{"route", "code", "audience"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vzcourier_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	uploads := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vzcourier_pricesheet_upload_bytes",
		Help:    "Declared size of spreadsheet uploads by response status code.",
		Buckets: prometheus.ExponentialBuckets(16<<10, 4, 7),
	}, []string{"code"})
	registry.MustRegister(
		requests,
		duration,
		uploads,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		uploadBytes:     uploads,
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records a count and duration for every request, labelled by
// the chi route pattern. Sheet uploads also record their declared size, so
// rejected oversized files show up next to accepted ones.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		code := strconv.Itoa(recorder.status)
		m.requestsTotal.WithLabelValues(route, code, audience(r)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if r.Method == http.MethodPost && strings.HasSuffix(route, "/upload") && r.ContentLength > 0 {
			m.uploadBytes.WithLabelValues(code).Observe(float64(r.ContentLength))
		}
	})
}

// Registerer exposes the registry for component metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func audience(r *http.Request) string {
	if shared.VendorFromContext(r.Context()) != "" {
		return audienceVendor
	}
	return audiencePublic
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
