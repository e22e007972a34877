package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus series exported by the API process.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ratesFetched    *prometheus.CounterVec
	unknownCodes    *prometheus.CounterVec
	saveFailures    *prometheus.CounterVec
}

// NewMetrics builds a private registry with the HTTP and domain collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tellquote_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tellquote_http_request_duration_seconds",
		Help:    "HTTP request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	fetched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tellquote_rates_fetch_total",
		Help: "Exchange-rate lookups partitioned by the source that answered (cache, live, fallback).",
	}, []string{"source"})
	unknown := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tellquote_currency_unknown_total",
		Help: "Conversions that fell back to USD parity for an unknown currency code.",
	}, []string{"code"})
	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tellquote_quote_save_failures_total",
		Help: "Quote persistence failures partitioned by kind.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, fetched, unknown, saves)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		ratesFetched:    fetched,
		unknownCodes:    unknown,
		saveFailures:    saves,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RatesFetched counts one rate lookup answered by source.
func (m *Metrics) RatesFetched(source string) {
	if m == nil {
		return
	}
	m.ratesFetched.WithLabelValues(source).Inc()
}

// UnknownCurrency counts a parity fallback for code. It matches
// currency.UnknownObserver so it can be installed directly.
func (m *Metrics) UnknownCurrency(code string) {
	if m == nil {
		return
	}
	m.unknownCodes.WithLabelValues(code).Inc()
}

// SaveFailed counts a failed quote persist.
func (m *Metrics) SaveFailed(kind string) {
	if m == nil {
		return
	}
	m.saveFailures.WithLabelValues(kind).Inc()
}

// Registerer exposes the registry for extra collectors.
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

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
