package httpapi

import (
	"net/http"
	"strings"
)

// cors mirrors the permissive defaults of the old Express server:
// - "*" in allowedOrigins (the default) allows every origin, without credentials
// - otherwise only listed origins are echoed back
// - OPTIONS preflight is answered with 204 and never reaches the router
func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allow := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = normalizeOrigin(o)
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			allow[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := false
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
				allowed = true
			case origin != "":
				w.Header().Add("Vary", "Origin")
				if _, ok := allow[normalizeOrigin(origin)]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					allowed = true
				}
			}

			if r.Method == http.MethodOptions {
				if allowed {
					setPreflightHeaders(w, r)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func normalizeOrigin(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "/")
	return s
}

func setPreflightHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
	if h := r.Header.Get("Access-Control-Request-Headers"); h != "" {
		w.Header().Set("Access-Control-Allow-Headers", h)
		w.Header().Add("Vary", "Access-Control-Request-Headers")
	}
	w.Header().Set("Content-Length", "0")
}
