package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"tradeindia-proxy/internal/handlers"
	"tradeindia-proxy/internal/metrics"
	"tradeindia-proxy/internal/ratelimit"
)

const tooManyRequests = "Too many requests. Please try again later."

// rateLimit admits each request against lim before anything else on the
// route runs. Rejected requests never reach validation or the upstream.
func rateLimit(lim *ratelimit.Limiter, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := now()
			d := lim.Admit(clientKey(r), t)
			metrics.RateLimitClients.Set(float64(lim.Len()))

			resetIn := d.RetryAfter(t)
			w.Header().Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(d.Remaining()))
			w.Header().Set("RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

			if !d.Allowed {
				metrics.RateLimited.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(resetIn.Seconds())))
				handlers.WriteError(w, http.StatusTooManyRequests, tooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey buckets callers by IP. Behind a proxy this is only meaningful
// when RealIP has rewritten RemoteAddr (TRUST_PROXY=true).
func clientKey(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return "unknown"
	}
	return host
}
