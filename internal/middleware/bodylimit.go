package middleware

import (
	"net/http"
)

// DefaultMaxBodySize caps request bodies at 64KB. The auth endpoints only
// accept small JSON payloads of tokens and identity fields, and webhook
// updates are a few hundred bytes each.
const DefaultMaxBodySize = 64 << 10

// BodyLimitMiddleware rejects oversized requests before handlers read them.
type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Declared lengths are rejected up front; chunked bodies are cut
		// off by MaxBytesReader when the handler reads past the cap.
		if r.ContentLength > m.maxSize {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "Request body too large",
			})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
