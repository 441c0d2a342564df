package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"golang.org/x/time/rate"
)

type ctxKeyRequestID struct{}

// requestID returns the id assigned to the request, or empty outside the
// middleware chain.
func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyRequestID{}).(string)
	return id
}

// withRequestID assigns every request a uuid, stored in the context and
// echoed in the X-Request-ID response header.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID(r),
		)
	})
}

// withAuth enforces bearer authentication and the per-token rate limit. With
// no tokens configured the chain passes through; New logs that condition.
func (s *Server) withAuth(next http.Handler) http.Handler {
	if len(s.tokens) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := s.authorize(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid bearer token", nil)
			return
		}
		if !s.limiters.allow(key) {
			writeError(w, r, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded for this token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorize matches the presented bearer token against the configured set in
// constant time. It returns the matched token's index, used as the rate
// limiter key.
func (s *Server) authorize(r *http.Request) (int, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return 0, false
	}
	presented := sha256.Sum256([]byte(strings.TrimPrefix(h, prefix)))
	matched, found := 0, false
	for i := range s.tokens {
		if subtle.ConstantTimeCompare(presented[:], s.tokens[i][:]) == 1 && !found {
			matched, found = i, true
		}
	}
	return matched, found
}

// tokenLimiters holds one rate limiter per configured token, created on first
// use. A non-positive rate disables limiting.
type tokenLimiters struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	byKey map[int]*rate.Limiter
}

func newTokenLimiters(perSecond float64, burst int) *tokenLimiters {
	if burst < 1 {
		burst = 1
	}
	return &tokenLimiters{
		limit: rate.Limit(perSecond),
		burst: burst,
		byKey: map[int]*rate.Limiter{},
	}
}

func (l *tokenLimiters) allow(key int) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.byKey[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byKey[key] = lim
	}
	return lim.Allow()
}
