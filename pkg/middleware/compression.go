package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Pool of gzip writers at the default level
var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

var compressibleTypes = []string{
	"text/",
	"application/json",
	"application/x-ndjson",
}

// gzipResponseWriter decides whether to compress once the handler has set
// its headers, on the first WriteHeader or Write
type gzipResponseWriter struct {
	http.ResponseWriter
	gz       *gzip.Writer
	decided  bool
	compress bool
}

func (w *gzipResponseWriter) decide(statusCode int) {
	if w.decided {
		return
	}
	w.decided = true

	h := w.Header()
	if statusCode == http.StatusNoContent || statusCode == http.StatusNotModified ||
		h.Get("Content-Encoding") != "" || !CompressibleContentType(h.Get("Content-Type")) {
		return
	}

	w.compress = true
	w.gz = gzipWriterPool.Get().(*gzip.Writer)
	w.gz.Reset(w.ResponseWriter)
	h.Set("Content-Encoding", "gzip")
	h.Del("Content-Length")
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	w.decide(statusCode)
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	if w.compress {
		return w.gz.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *gzipResponseWriter) close() error {
	if !w.compress {
		return nil
	}
	err := w.gz.Close()
	gzipWriterPool.Put(w.gz)
	return err
}

// Gzip compresses text and JSON responses for clients that accept gzip
func Gzip(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}

			gzw := &gzipResponseWriter{ResponseWriter: w}
			next.ServeHTTP(gzw, r)

			if err := gzw.close(); err != nil {
				logger.Debug("Failed to finish gzip stream",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
			}
		})
	}
}

// CompressibleContentType reports whether responses of contentType are compressed
func CompressibleContentType(contentType string) bool {
	for _, prefix := range compressibleTypes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}
