package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tradeindia-proxy/internal/config"
	"tradeindia-proxy/internal/handlers"
	"tradeindia-proxy/internal/ratelimit"
)

// Deps are the collaborators the router wires together. Now is the single
// clock shared by the rate limiter and the default-date logic.
type Deps struct {
	Config  config.Config
	Leads   handlers.LeadFetcher
	Limiter *ratelimit.Limiter
	Now     func() time.Time
	Log     *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.New(d.Config.RateLimitMax, d.Config.RateLimitWindow)
	}

	r := chi.NewRouter()

	// --- middlewares
	if d.Config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestID)
	r.Use(requestLogger(d.Log))
	r.Use(requestMetrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(securityHeaders)
	r.Use(cors(d.Config.CORSOrigins))

	h := handlers.New(d.Leads, d.Now, d.Log)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.With(
		handlers.RequireClientToken(d.Config.ClientTokenSecret, d.Now),
		rateLimit(d.Limiter, d.Now),
	).Get("/fetch-tradeindia", h.FetchTradeIndia)

	// fallback JSON
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteJSON(w, http.StatusNotFound, map[string]any{
			"error": "Not found",
			"path":  r.URL.Path,
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
