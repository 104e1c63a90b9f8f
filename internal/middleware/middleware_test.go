package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name        string
		development bool
		wantHSTS    bool
	}{
		{name: "production", development: false, wantHSTS: true},
		{name: "development", development: true, wantHSTS: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewSecurityHeaders(tt.development).Middleware(okHandler).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
			assert.Equal(t, tt.wantHSTS, rec.Header().Get("Strict-Transport-Security") != "")
		})
	}
}

func TestCORS(t *testing.T) {
	const allowed = "http://localhost:3000"
	handler := NewCORS(allowed + "/").Middleware(okHandler)

	tests := []struct {
		name          string
		method        string
		origin        string
		preflight     bool
		wantStatus    int
		wantAllowOrig string
		wantMethods   bool
	}{
		{name: "allowed simple request", method: http.MethodPost, origin: allowed, wantStatus: http.StatusOK, wantAllowOrig: allowed},
		{name: "allowed preflight", method: http.MethodOptions, origin: allowed, preflight: true, wantStatus: http.StatusNoContent, wantAllowOrig: allowed, wantMethods: true},
		{name: "disallowed simple request", method: http.MethodPost, origin: "http://evil.example", wantStatus: http.StatusOK},
		{name: "disallowed preflight", method: http.MethodOptions, origin: "http://evil.example", preflight: true, wantStatus: http.StatusForbidden},
		{name: "same origin without header", method: http.MethodGet, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/transactions", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllowOrig, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantMethods, rec.Header().Get("Access-Control-Allow-Methods") != "")
			assert.Equal(t, "Origin", rec.Header().Get("Vary"))
		})
	}
}
