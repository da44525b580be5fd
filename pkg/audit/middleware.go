package audit

import (
	"net"
	"net/http"
	"strings"

	"github.com/krama-desa/iuran/pkg/contextkeys"
)

// Middleware stores the request metadata every audit entry carries in the
// request context. It records nothing itself; entries are written by the
// services for the mutations they perform.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := RequestMeta{
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
			Method:    r.Method,
			Path:      r.URL.Path,
		}
		if id, ok := r.Context().Value(contextkeys.RequestIDKey).(string); ok {
			meta.RequestID = id
		} else {
			meta.RequestID = r.Header.Get("X-Request-ID")
		}

		next.ServeHTTP(w, r.WithContext(WithRequestMeta(r.Context(), meta)))
	})
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	// X-Forwarded-For may hold a chain; the first hop is the client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
