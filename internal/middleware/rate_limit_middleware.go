package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RequestCounter: оконный счетчик попыток (redisrepo.AttemptCounter)
type RequestCounter interface {
	Increment(ctx context.Context, scopeKey string, window time.Duration) (int64, error)
	TTL(ctx context.Context, scopeKey string) (time.Duration, error)
}

// maxLocalLimiters ограничивает память под локальные лимитеры; при переполнении карта сбрасывается
const maxLocalLimiters = 10000

// RateLimitConfig содержит настройки rate limiting
type RateLimitConfig struct {
	// MaxRequests: максимальное количество запросов за Window
	MaxRequests int64
	Window      time.Duration
	// FailOpen пропускает запрос, если Redis недоступен. По умолчанию запрос отклоняется.
	FailOpen bool
	// LocalRPS/LocalBurst: лимит в памяти процесса перед обращением к Redis; 0 отключает
	LocalRPS   float64
	LocalBurst int
}

// DefaultAuthRateLimitConfig возвращает конфигурацию по умолчанию для auth endpoints
func DefaultAuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 20,
		Window:      time.Minute,
		LocalRPS:    5,
		LocalBurst:  10,
	}
}

// RateLimiter ограничивает запросы по IP и маршруту.
// Счетчики живут в Redis и общие для всех инстансов; локальный token bucket
// отсекает всплески, не нагружая Redis.
type RateLimiter struct {
	counter RequestCounter
	cfg     RateLimitConfig

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func NewRateLimiter(counter RequestCounter, cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		cfg:     cfg,
		local:   make(map[string]*rate.Limiter),
	}
}

// RouteScope: ключ счетчика для пары (IP, маршрут)
func RouteScope(clientIP, path string) string {
	return fmt.Sprintf("route:%s:%s", clientIP, path)
}

// Limit возвращает Gin middleware. Ключ формируется из IP + шаблона маршрута.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		scope := RouteScope(clientIP, path)

		if !rl.allowLocal(scope) {
			log.Printf("[RateLimiter] INFO: локальный лимит превышен для IP=%s path=%s", clientIP, path)
			rl.reject(c, 1)
			return
		}

		count, err := rl.counter.Increment(c.Request.Context(), scope, rl.cfg.Window)
		if err != nil {
			if rl.cfg.FailOpen {
				log.Printf("[RateLimiter] WARN: Redis error for %s: %v. Allowing request (fail-open).", scope, err)
				c.Next()
				return
			}
			log.Printf("[RateLimiter] WARN: Redis error for %s: %v. Rejecting request (fail-closed).", scope, err)
			c.Header("Retry-After", "5")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":      "Service temporarily unavailable",
				"error_type": "cache_unavailable",
			})
			return
		}

		retryAfter := int(rl.cfg.Window.Seconds())
		if ttl, err := rl.counter.TTL(c.Request.Context(), scope); err == nil && ttl > 0 {
			retryAfter = int((ttl + time.Second - 1) / time.Second)
		}

		remaining := rl.cfg.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(rl.cfg.MaxRequests, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.Itoa(retryAfter))

		if count > rl.cfg.MaxRequests {
			log.Printf("[RateLimiter] INFO: Rate limit exceeded for IP=%s path=%s. Count=%d, Limit=%d",
				clientIP, path, count, rl.cfg.MaxRequests)
			rl.reject(c, retryAfter)
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) reject(c *gin.Context, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "Too many requests. Please try again later.",
		"error_type":  "rate_limited",
		"retry_after": retryAfter,
	})
}

func (rl *RateLimiter) allowLocal(scope string) bool {
	if rl.cfg.LocalRPS <= 0 {
		return true
	}
	rl.mu.Lock()
	if len(rl.local) >= maxLocalLimiters {
		rl.local = make(map[string]*rate.Limiter)
	}
	limiter, ok := rl.local[scope]
	if !ok {
		burst := rl.cfg.LocalBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rl.cfg.LocalRPS), burst)
		rl.local[scope] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}
