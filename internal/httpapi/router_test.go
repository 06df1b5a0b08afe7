package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeindia-proxy/internal/config"
	"tradeindia-proxy/internal/handlers"
	"tradeindia-proxy/internal/metrics"
	"tradeindia-proxy/internal/ratelimit"
	"tradeindia-proxy/internal/tradeindia"
)

var creds = tradeindia.Credentials{UserID: "u-1", ProfileID: "p-1", Key: "very-secret-key"}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeUpstream struct {
	srv   *httptest.Server
	calls atomic.Int64
	last  atomic.Pointer[url.Values]
}

func newFakeUpstream(t *testing.T, status int, body string) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		q := r.URL.Query()
		f.last.Store(&q)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func testConfig() config.Config {
	return config.Config{
		UserID:          creds.UserID,
		ProfileID:       creds.ProfileID,
		Key:             creds.Key,
		UpstreamTimeout: time.Second,
		RateLimitMax:    30,
		RateLimitWindow: time.Minute,
		CORSOrigins:     []string{"*"},
	}
}

func newTestRouter(cfg config.Config, endpoint string, clk *clock) http.Handler {
	return NewRouter(Deps{
		Config:  cfg,
		Leads:   tradeindia.NewClient(endpoint, creds, cfg.UpstreamTimeout),
		Limiter: ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow),
		Now:     clk.Now,
	})
}

func get(h http.Handler, target, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestFetchWithoutParamsRelaysUpstreamBody(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"leads":[]}`)
	clk := &clock{t: time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)}
	h := newTestRouter(testConfig(), up.srv.URL, clk)

	rec := get(h, "/fetch-tradeindia", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"leads":[]}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	q := *up.last.Load()
	assert.Equal(t, "2024-03-09", q.Get("from_date"))
	assert.Equal(t, "2024-03-09", q.Get("to_date"))
	assert.Equal(t, "100", q.Get("limit"))
	assert.Equal(t, "1", q.Get("page_no"))
	assert.Equal(t, creds.Key, q.Get("key"))
}

func TestFetchUpstreamUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	endpoint := dead.URL
	dead.Close()

	clk := &clock{t: time.Now()}
	h := newTestRouter(testConfig(), endpoint, clk)

	rec := get(h, "/fetch-tradeindia", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "Failed to fetch TradeIndia data", body["error"])
	assert.NotEmpty(t, body["details"])
	assert.NotContains(t, rec.Body.String(), creds.Key)
}

func TestFetchUpstreamTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer slow.Close()

	cfg := testConfig()
	cfg.UpstreamTimeout = 50 * time.Millisecond
	h := newTestRouter(cfg, slow.URL, &clock{t: time.Now()})

	rec := get(h, "/fetch-tradeindia", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "Failed to fetch TradeIndia data", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestFetchUpstreamNon2xx(t *testing.T) {
	up := newFakeUpstream(t, http.StatusForbidden, `<html>blocked</html>`)
	h := newTestRouter(testConfig(), up.srv.URL, &clock{t: time.Now()})

	rec := get(h, "/fetch-tradeindia", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{
		"error":   "Failed to fetch TradeIndia data",
		"details": "Request failed with status code 403",
	}, errorBody(t, rec))
}

func TestFetchValidationErrorSkipsUpstream(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	h := newTestRouter(testConfig(), up.srv.URL, &clock{t: time.Now()})

	rec := get(h, "/fetch-tradeindia?from_date=2024-1-1", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"error": "Invalid date format. Use YYYY-MM-DD"}, errorBody(t, rec))
	assert.Zero(t, up.calls.Load())
}

func TestFetchRateLimit(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"leads":[]}`)
	clk := &clock{t: time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)}
	h := newTestRouter(testConfig(), up.srv.URL, clk)

	before := testutil.ToFloat64(metrics.RateLimited)

	for i := 1; i <= 30; i++ {
		rec := get(h, "/fetch-tradeindia", "203.0.113.7:5000")
		require.Equalf(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "30", rec.Header().Get("RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(30-i), rec.Header().Get("RateLimit-Remaining"))
		clk.Advance(time.Second)
	}

	rec := get(h, "/fetch-tradeindia", "203.0.113.7:6000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, map[string]any{"error": "Too many requests. Please try again later."}, errorBody(t, rec))
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, int64(30), up.calls.Load(), "rejected request must not reach upstream")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimited))

	// Rejection is checked before validation.
	rec = get(h, "/fetch-tradeindia?limit=0", "203.0.113.7:6000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Another client is unaffected.
	rec = get(h, "/fetch-tradeindia", "198.51.100.1:5000")
	assert.Equal(t, http.StatusOK, rec.Code)

	// After the window the first client starts over.
	clk.Advance(31 * time.Second)
	rec = get(h, "/fetch-tradeindia", "203.0.113.7:5000")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "29", rec.Header().Get("RateLimit-Remaining"))
}

func TestFetchRateLimitTrustProxy(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	cfg := testConfig()
	cfg.RateLimitMax = 1
	cfg.TrustProxy = true
	h := newTestRouter(cfg, up.srv.URL, &clock{t: time.Now()})

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/fetch-tradeindia", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1"))
	assert.Equal(t, http.StatusOK, send("192.0.2.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1"))
}

func TestCORS(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	h := newTestRouter(testConfig(), up.srv.URL, &clock{t: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/fetch-tradeindia", nil)
	req.Header.Set("Origin", "https://crm.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/fetch-tradeindia", nil)
	req.Header.Set("Origin", "https://crm.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
	assert.Equal(t, "authorization", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Zero(t, up.calls.Load())
}

func TestCORSRestrictedOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigins = []string{"https://crm.example.com/"}
	h := newTestRouter(cfg, "http://127.0.0.1:1", &clock{t: time.Now()})

	for origin, want := range map[string]string{
		"https://crm.example.com": "https://crm.example.com",
		"https://evil.example":    "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestClientTokenGuard(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"leads":[]}`)
	clk := &clock{t: time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)}
	cfg := testConfig()
	cfg.ClientTokenSecret = "guard-secret"
	h := newTestRouter(cfg, up.srv.URL, clk)

	rec := get(h, "/fetch-tradeindia", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"error": "Unauthorized"}, errorBody(t, rec))

	token, err := handlers.SignClientToken(cfg.ClientTokenSecret, "crm", time.Hour, clk.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/fetch-tradeindia", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), up.calls.Load())
}

func TestHealthAndFallbacks(t *testing.T) {
	h := newTestRouter(testConfig(), "http://127.0.0.1:1", &clock{t: time.Now()})

	rec := get(h, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ok": true}, errorBody(t, rec))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = get(h, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]any{"error": "Not found", "path": "/nope"}, errorBody(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/fetch-tradeindia", strings.NewReader("{}"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newTestRouter(testConfig(), "http://127.0.0.1:1", &clock{t: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(testConfig(), "http://127.0.0.1:1", &clock{t: time.Now()})

	_ = get(h, "/health", "")
	rec := get(h, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tradeindia_proxy_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/health"`)
}

func TestClientKey(t *testing.T) {
	tests := map[string]string{
		"192.0.2.1:1234":   "192.0.2.1",
		"[2001:db8::1]:80": "2001:db8::1",
		"192.0.2.9":        "192.0.2.9",
		"":                 "unknown",
	}
	for addr, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		assert.Equal(t, want, clientKey(req), addr)
	}
}
