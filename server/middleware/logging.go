package middleware

import (
	"net/http"
	"time"

	"github.com/kbukum/whisper-gateway/logger"
)

// quietPaths are polled by supervisors and scrapers and not access-logged.
var quietPaths = map[string]bool{
	"/health":    true,
	"/v1/health": true,
	"/metrics":   true,
}

// RequestLogger returns middleware that writes one access line per request
// with method, path, status, response size and duration. Health polls and
// metric scrapes are skipped.
func RequestLogger(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := newRecorder(w)
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			fields := map[string]interface{}{
				"method":             r.Method,
				logger.FieldPath:     r.URL.Path,
				logger.FieldStatus:   rec.status,
				"bytes":              rec.bytes,
				"client":             r.RemoteAddr,
				logger.FieldDuration: duration.Milliseconds(),
			}
			if id := r.Header.Get(RequestIDHeader); id != "" {
				fields[logger.FieldRequestID] = id
			}

			logByStatus(log, fields, rec.status)
		})
	}
}

// logByStatus logs request fields at the level matching the status code.
func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("Request completed", fields)
	case status >= 400:
		log.Warn("Request completed", fields)
	default:
		log.Info("Request completed", fields)
	}
}
