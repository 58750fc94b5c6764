package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// WindowCounter counts hits per key in fixed windows.
type WindowCounter struct {
	mu      sync.Mutex
	window  time.Duration
	buckets map[string]windowBucket
	now     func() time.Time
}

type windowBucket struct {
	start time.Time
	count int
}

func NewWindowCounter(window time.Duration) *WindowCounter {
	return &WindowCounter{window: window, buckets: map[string]windowBucket{}, now: time.Now}
}

// Increment records a hit and returns the count in the current window.
func (w *WindowCounter) Increment(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	b := w.buckets[key]
	if now.Sub(b.start) >= w.window {
		b = windowBucket{start: now}
	}
	b.count++
	w.buckets[key] = b
	return b.count
}

// Sweep drops keys whose window has closed.
func (w *WindowCounter) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	n := 0
	for key, b := range w.buckets {
		if now.Sub(b.start) >= w.window {
			delete(w.buckets, key)
			n++
		}
	}
	return n
}

// RateLimit returns middleware that enforces a per-caller limit per window.
// Unauthenticated requests are keyed by client IP.
func RateLimit(counter *WindowCounter, limit int, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id, ok := GetIdentity(c); ok {
			key = "user:" + strconv.FormatInt(id.UserID, 10)
		}

		if count := counter.Increment(key); count > limit {
			logger.Debug("rate limited", "key", key, "count", count, "limit", limit)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
