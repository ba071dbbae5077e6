package middleware

import (
	"net/http"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/pkg/metrics"
)

// Metrics records HTTP metrics labelled by the matched route pattern
func (m *Middleware) Metrics(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			metrics.HttpRequestsInFlight.WithLabelValues(serviceName).Inc()
			defer metrics.HttpRequestsInFlight.WithLabelValues(serviceName).Dec()

			rw := newStatusRecorder(w)
			next.ServeHTTP(rw, r)

			metrics.RecordHTTPMetrics(serviceName, r.Method, routeLabel(r), rw.Status(), time.Since(start))
		})
	}
}

// routeLabel keeps path parameters out of metric labels
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}
