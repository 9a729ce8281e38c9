package middleware

import (
	"net/http"

	"github.com/kbukum/whisper-gateway/util"
)

const defaultMaxBodySize = 101 << 20

// BodySizeLimit caps the request body at maxSize (e.g. "101MB"). Reads past
// the cap fail with *http.MaxBytesError for the handler to report, so the
// handler still decides which error an oversized request gets.
func BodySizeLimit(maxSize string) Middleware {
	limit := util.ParseSize(maxSize, defaultMaxBodySize)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
