package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORS allows cross-origin requests from a single configured origin
type CORS struct {
	allowedOrigin string
	methods       string
	headers       string
	maxAge        string
}

// NewCORS creates a CORS middleware for allowedOrigin
func NewCORS(allowedOrigin string) *CORS {
	return &CORS{
		allowedOrigin: strings.TrimRight(allowedOrigin, "/"),
		methods:       strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", "),
		headers:       "Content-Type, Authorization",
		maxAge:        strconv.Itoa(int((10 * time.Minute).Seconds())),
	}
}

// Middleware answers preflight requests and decorates responses for the
// allowed origin. Requests from other origins pass through without CORS
// headers, which browsers treat as a denial.
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Add("Vary", "Origin")

		if origin == "" || origin != c.allowedOrigin {
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", c.methods)
			w.Header().Set("Access-Control-Allow-Headers", c.headers)
			w.Header().Set("Access-Control-Max-Age", c.maxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
