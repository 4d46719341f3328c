package core

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiter implements a per client sliding window rate limit
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*Client
	limit    int
	window   time.Duration
	cleanupC chan struct{}
	stopOnce sync.Once
}

type Client struct {
	requests []time.Time
	blocked  time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute per client
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	return newRateLimiter(requestsPerMinute, time.Minute)
}

func newRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:  make(map[string]*Client),
		limit:    limit,
		window:   window,
		cleanupC: make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Middleware returns a Gin middleware function
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": ErrRateLimited.Error(),
			})
			return
		}
		c.Next()
	}
}

// Allow checks if a request of clientIP should be allowed
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	RecordRateLimitHit()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		client = &Client{}
		rl.clients[clientIP] = client
	}

	if now.Before(client.blocked) {
		RecordRateLimitBlock()
		return false
	}

	cutoff := now.Add(-rl.window)
	valid := client.requests[:0]
	for _, reqTime := range client.requests {
		if reqTime.After(cutoff) {
			valid = append(valid, reqTime)
		}
	}
	client.requests = valid

	if len(client.requests) >= rl.limit {
		client.blocked = now.Add(rl.window)
		RecordRateLimitBlock()
		return false
	}

	client.requests = append(client.requests, now)
	return true
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-rl.window * 2)
			for ip, client := range rl.clients {
				if len(client.requests) == 0 || client.requests[len(client.requests)-1].Before(cutoff) {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.cleanupC:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.cleanupC) })
}

// SecurityHeadersMiddleware adds security headers to responses
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy",
			"default-src 'self'; img-src 'self' data:; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'")
		c.Next()
	}
}

// RequestLoggerMiddleware logs every request with zap
func RequestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			Error("request failed", fields...)
		case status >= 400:
			Warn("request rejected", fields...)
		default:
			Info("request", fields...)
		}
	}
}
