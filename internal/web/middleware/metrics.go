package middleware

import (
	"net/http"
	"time"
)

// RequestObserver receives one observation per finished request.
type RequestObserver interface {
	ObserveRequest(route, method string, code int, elapsed time.Duration)
}

// Metrics reports every request to obs, labelled by the matched route
// pattern rather than the raw path.
func Metrics(obs RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := wrap(w)
			next.ServeHTTP(ww, r)

			obs.ObserveRequest(routePattern(r), r.Method, ww.status, time.Since(start))
		})
	}
}
