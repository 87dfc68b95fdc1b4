package http

import (
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateLimiter counts requests per client key inside a sliding one-minute
// window. Zero limit disables it.
type rateLimiter struct {
	limit int

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start   time.Time
	counter int
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		windows: make(map[string]*window),
	}
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		// Reuse the sweep to drop windows that went stale.
		for k, old := range r.windows {
			if now.Sub(old.start) >= time.Minute {
				delete(r.windows, k)
			}
		}
		w = &window{start: now}
		r.windows[key] = w
	}

	w.counter++
	return w.counter <= r.limit
}

// RateLimitMiddleware throttles a route group by client IP.
func RateLimitMiddleware(limit int) gin.HandlerFunc {
	limiter := newRateLimiter(limit)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP(), time.Now()) {
			c.JSON(stdhttp.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
