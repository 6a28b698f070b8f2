package middleware

import (
	"net/http"
	"time"
)

type httpMetrics interface {
	HTTPRequest(method string, status int, duration time.Duration)
}

func MetricsMiddleware(m httpMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			m.HTTPRequest(r.Method, rw.data.status, time.Since(start))
		})
	}
}
