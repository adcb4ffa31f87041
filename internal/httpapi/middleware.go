package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	startKey
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

func elapsedMillis(r *http.Request, now time.Time) int64 {
	start, ok := r.Context().Value(startKey).(time.Time)
	if !ok {
		return 0
	}
	return now.Sub(start).Milliseconds()
}

// requestMeta assigns the request ID and records the start time. The
// processing time header is set when the response status is written.
func (s *Server) requestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestIDFrom(r) != "" {
			next.ServeHTTP(w, r)
			return
		}

		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		start := s.now()

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = context.WithValue(ctx, startKey, start)
		w.Header().Set(RequestIDHeader, id)

		next.ServeHTTP(&timingWriter{ResponseWriter: w, start: start, now: s.now}, r.WithContext(ctx))
	})
}

type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	now         func() time.Time
	wroteHeader bool
}

func (w *timingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.Header().Set("X-Processing-Time", strconv.FormatInt(w.now().Sub(w.start).Milliseconds(), 10)+"ms")
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *timingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher when the underlying writer does.
func (w *timingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// rateLimit enforces the per-client window on /api routes.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := s.limiter.Allow(r.Context(), clientIP(r, s.config.TrustedProxies))
		if err != nil {
			s.logger.Warn().Err(err).Msg("Rate limiter unavailable, allowing request")
		}

		if d.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		}

		if !d.Allowed {
			retry := d.RetryAfter(s.now())
			w.Header().Set("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
			s.writeError(w, r, http.StatusTooManyRequests, "Too many requests from this IP, please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitConcurrency bounds the number of in-flight compute requests. Callers
// wait for a slot until their context ends.
func (s *Server) limitConcurrency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.slots.Acquire(r.Context(), 1); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, "Server busy, please retry later")
			return
		}
		defer s.slots.Release(1)
		next.ServeHTTP(w, r)
	})
}

// requireAI rejects AI routes when no OpenAI key is configured.
func (s *Server) requireAI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ai == nil {
			s.writeError(w, r, http.StatusServiceUnavailable, "AI service not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the address the trusted proxies saw the client connect
// from. Each of the trusted hops appends one X-Forwarded-For entry, so the
// client is the entry trustedHops from the right; anything left of it is
// client supplied.
func clientIP(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		var hops []string
		for _, h := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			if h = strings.TrimSpace(h); h != "" {
				hops = append(hops, h)
			}
		}
		if len(hops) > 0 {
			return hops[max(len(hops)-trustedHops, 0)]
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
