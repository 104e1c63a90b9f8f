// Package middleware holds HTTP middleware for the statement API.
package middleware

import (
	"net/http"
)

// SecurityHeaders adds security-related HTTP headers to every response
type SecurityHeaders struct {
	isDevelopment bool
}

// NewSecurityHeaders creates a new security headers middleware
func NewSecurityHeaders(isDevelopment bool) *SecurityHeaders {
	return &SecurityHeaders{
		isDevelopment: isDevelopment,
	}
}

const (
	// The API only ever answers JSON or plain text
	apiCSP = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
	devCSP = "default-src 'self'; frame-ancestors 'none'; base-uri 'self'"
	hsts   = "max-age=31536000; includeSubDomains"
)

// Middleware wraps an HTTP handler with security headers
func (sh *SecurityHeaders) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")

		if sh.isDevelopment {
			h.Set("Content-Security-Policy", devCSP)
		} else {
			// HSTS breaks plain-http local setups
			h.Set("Strict-Transport-Security", hsts)
			h.Set("Content-Security-Policy", apiCSP)
		}

		next.ServeHTTP(w, r)
	})
}
