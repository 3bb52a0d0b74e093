package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feedesk/internal/middleware/ratelimit"
	"feedesk/internal/middleware/security"
)

// metrics holds the collectors of one server. Each server owns its registry
// so that tests can build many servers in one process.
type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	actions  *prometheus.CounterVec
}

func newMetrics(limiter *ratelimit.Limiter, detector *security.Detector) *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "feedesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedesk",
			Name:      "actions_total",
			Help:      "Fee and payment actions by outcome.",
		}, []string{"action", "outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.actions,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "feedesk",
			Name:      "rate_limit_active_clients",
			Help:      "Client addresses tracked by the rate limiter.",
		}, func() float64 { return float64(limiter.ActiveClients()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "feedesk",
			Name:      "rate_limit_rejected_total",
			Help:      "Requests refused by the rate limiter.",
		}, func() float64 { return float64(limiter.Rejected()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "feedesk",
			Name:      "suspicious_requests_total",
			Help:      "Requests flagged as probing.",
		}, func() float64 { return float64(detector.Suspicious()) }),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observeAction counts the outcome of a fee or payment action.
func (m *metrics) observeAction(action string, err error) {
	outcome := "ok"
	if err != nil {
		status, _ := classify(err)
		outcome = strconv.Itoa(status)
	}
	m.actions.WithLabelValues(action, outcome).Inc()
}

// instrument records every request under its chi route pattern, which keeps
// label cardinality bounded by the route table.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
