package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	loginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	tokenValidationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_validation_total",
			Help: "Bearer token validations by result.",
		},
		[]string{"result"},
	)

	authzDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by outcome and deny reason.",
		},
		[]string{"decision", "reason"},
	)

	initOnce sync.Once
)

// Init registers the gateway metrics in the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			loginTotal, tokenValidationTotal, authzDecisionsTotal,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordLogin counts a login attempt. outcome is "success" or a failure cause.
func RecordLogin(outcome string) {
	loginTotal.WithLabelValues(outcome).Inc()
}

// RecordTokenValidation counts a bearer token check. result is "valid" or
// the rejection cause.
func RecordTokenValidation(result string) {
	tokenValidationTotal.WithLabelValues(result).Inc()
}

// RecordAuthzDecision counts an authorization decision. reason is empty for
// allowed decisions.
func RecordAuthzDecision(allowed bool, reason string) {
	decision := "deny"
	if allowed {
		decision = "allow"
		reason = ""
	}
	authzDecisionsTotal.WithLabelValues(decision, reason).Inc()
}

// Instrument measures request count, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses resource identifiers so that metric label
// cardinality stays bounded. Unknown shapes are returned unchanged.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" {
		return p
	}
	switch parts[1] {
	case "users":
		// /api/users/me and /api/users/me/password are fixed routes.
		if parts[2] == "me" {
			return p
		}
		if len(parts) == 3 {
			return "/api/users/:id"
		}
		if len(parts) == 4 && (parts[3] == "role" || parts[3] == "enabled" || parts[3] == "affiliation") {
			return "/api/users/:id/" + parts[3]
		}
	case "students":
		if len(parts) == 3 {
			return "/api/students/:id"
		}
		if len(parts) == 4 && parts[3] == "profile" {
			return "/api/students/:id/profile"
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
