package logging

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// RequestIDFunc returns the request ID of r, or "".
type RequestIDFunc func(r *http.Request) string

// Middleware attaches logger to each request context and writes one access
// log line per request. requestID may be nil.
func Middleware(logger zerolog.Logger, requestID RequestIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			event := hlog.FromRequest(r).Info()
			if status >= http.StatusInternalServerError {
				event = hlog.FromRequest(r).Error()
			} else if status >= http.StatusBadRequest {
				event = hlog.FromRequest(r).Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("HTTP request")
		})(next)

		h = withRequestID(requestID)(h)
		h = hlog.RemoteAddrHandler("remote_addr")(h)
		h = hlog.UserAgentHandler("user_agent")(h)
		return hlog.NewHandler(logger)(h)
	}
}

// withRequestID adds the request ID to the request logger.
func withRequestID(requestID RequestIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requestID != nil {
				if id := requestID(r); id != "" {
					l := zerolog.Ctx(r.Context())
					l.UpdateContext(func(c zerolog.Context) zerolog.Context {
						return c.Str("request_id", id)
					})
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
