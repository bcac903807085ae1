package http

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"satis/internal/cache"
	"satis/internal/log"
)

// rateLimiter keeps one token bucket per client IP. Buckets for clients
// idle longer than the table TTL are dropped by the cache sweep.
type rateLimiter struct {
	perMinute int
	clients   *cache.LRUCache[*rate.Limiter]
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		clients:   cache.NewLRUCache[*rate.Limiter](10000, 10*time.Minute),
	}
}

func (rl *rateLimiter) allow(clientIP string) bool {
	fresh := rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.perMinute)
	lim, _ := rl.clients.SetIfAbsent(clientIP, fresh)
	return lim.Allow()
}

// retryAfter is the whole number of seconds until one token is available.
func (rl *rateLimiter) retryAfter() int {
	secs := int((time.Minute / time.Duration(rl.perMinute)).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		if !s.limiter.allow(clientIP) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(s.limiter.retryAfter()))
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded, please try again later"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
