package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per client IP with a token bucket. The set
// of tracked clients is bounded; the least recently seen are evicted.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	clients *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter allows rps requests per second with the given burst for
// each client, tracking at most maxClients at once.
func NewRateLimiter(rps float64, burst, maxClients int) (*RateLimiter, error) {
	if burst <= 0 {
		burst = 1
	}
	if maxClients <= 0 {
		maxClients = 10000
	}
	clients, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{limit: rate.Limit(rps), burst: burst, clients: clients}, nil
}

// Allow reports whether the client may issue a request now
func (r *RateLimiter) Allow(client string) bool {
	limiter, ok := r.clients.Get(client)
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
		// a concurrent first request may already have stored one
		if prev, found, _ := r.clients.PeekOrAdd(client, limiter); found {
			limiter = prev
		}
	}
	return limiter.Allow()
}

// Middleware rejects throttled requests with 429
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
