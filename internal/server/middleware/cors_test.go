package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func corsHandler(cfg CORSConfig) http.Handler {
	return CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORS(t *testing.T) {
	cfg := CORSConfig{
		Origins: []string{"https://ops.example.com"},
		Methods: []string{http.MethodGet, http.MethodPost},
		Headers: []string{"Content-Type", "X-API-Key"},
		MaxAge:  10 * time.Minute,
	}
	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  string
		wantCode   int
		wantOrigin string
		wantMaxAge string
	}{
		{name: "no origin", method: http.MethodGet, wantCode: http.StatusOK},
		{name: "allowed simple request", method: http.MethodGet, origin: "https://OPS.example.com",
			wantCode: http.StatusOK, wantOrigin: "https://OPS.example.com"},
		{name: "disallowed simple request", method: http.MethodGet, origin: "https://evil.example.com",
			wantCode: http.StatusOK},
		{name: "preflight", method: http.MethodOptions, origin: "https://ops.example.com", preflight: http.MethodPost,
			wantCode: http.StatusNoContent, wantOrigin: "https://ops.example.com", wantMaxAge: "600"},
		{name: "preflight for unlisted method", method: http.MethodOptions, origin: "https://ops.example.com",
			preflight: http.MethodDelete, wantCode: http.StatusForbidden},
		{name: "preflight from disallowed origin", method: http.MethodOptions, origin: "https://evil.example.com",
			preflight: http.MethodGet, wantCode: http.StatusForbidden},
		{name: "bare options passes through", method: http.MethodOptions, origin: "https://ops.example.com",
			wantCode: http.StatusOK, wantOrigin: "https://ops.example.com"},
	}
	h := corsHandler(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/status", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight != "" {
				req.Header.Set("Access-Control-Request-Method", tt.preflight)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantMaxAge, rec.Header().Get("Access-Control-Max-Age"))
			if tt.origin != "" {
				assert.Equal(t, "Origin", rec.Header().Get("Vary"))
			}
		})
	}
}

func TestCORSPreflightHeaders(t *testing.T) {
	h := corsHandler(CORSConfig{
		Methods: []string{http.MethodGet, http.MethodPost},
		Headers: []string{"Content-Type", "X-API-Key"},
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/risk/reset", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://anywhere.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, X-API-Key", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Empty(t, rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSWildcardOrigin(t *testing.T) {
	assert.True(t, CORSConfig{Origins: []string{"*"}}.allows("https://x.example.com"))
	assert.False(t, CORSConfig{Origins: []string{"https://a.example.com"}}.allows("https://b.example.com"))
}
