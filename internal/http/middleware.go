package http

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/valtp/saas-platform/panel-service/internal/models"
)

const (
	ctxUserID = "userID"
	ctxEmail  = "email"
)

// JWTAuthMiddleware validates HS256 bearer tokens issued by the auth service.
// The user id is taken from the uid claim, falling back to sub.
func JWTAuthMiddleware(secretKey string) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			abort(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secretKey), nil
		})
		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		userID, _ := claims["uid"].(string)
		if userID == "" {
			userID, _ = claims["sub"].(string)
		}
		if userID == "" {
			abort(c, http.StatusUnauthorized, "invalid token claims")
			return
		}

		c.Set(ctxUserID, userID)
		if email, ok := claims["email"].(string); ok {
			c.Set(ctxEmail, email)
		}
		c.Next()
	}
}

// callerFrom returns the identity set by JWTAuthMiddleware.
func callerFrom(c *gin.Context) models.Caller {
	return models.Caller{
		UserID: c.GetString(ctxUserID),
		Email:  c.GetString(ctxEmail),
	}
}

// RoleResolver looks up a user's role.
type RoleResolver interface {
	Role(ctx context.Context, userID string) (models.Role, error)
}

// RequireRole lets the request through only when the caller holds role.
func RequireRole(roles RoleResolver, role models.Role, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ctxUserID)
		got, err := roles.Role(c.Request.Context(), userID)
		if err != nil {
			logger.Error("resolve role failed", zap.String("user_id", userID), zap.Error(err))
			abort(c, http.StatusInternalServerError, "Terjadi kesalahan internal")
			return
		}
		if got != role {
			abort(c, http.StatusForbidden, "Akses ditolak")
			return
		}
		c.Next()
	}
}

// RateLimiter hands out one token bucket per key. Idle buckets expire after
// the window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *ttlcache.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	window   time.Duration
}

// NewRateLimiter allows limit requests per window and key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	cache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](window),
	)
	go cache.Start()

	return &RateLimiter{
		limiters: cache,
		limit:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		window:   window,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	item := rl.limiters.Get(key)
	if item == nil {
		item = rl.limiters.Set(key, rate.NewLimiter(rl.limit, rl.burst), ttlcache.DefaultTTL)
	}
	return item.Value()
}

// Reserve takes a token for key. It returns zero when the request may
// proceed, otherwise how long the caller should wait.
func (rl *RateLimiter) Reserve(key string) time.Duration {
	res := rl.limiter(key).Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return delay
	}
	return 0
}

// Wait reports how long until key has a token, without taking it.
func (rl *RateLimiter) Wait(key string) time.Duration {
	lim := rl.limiter(key)
	if lim.Tokens() >= 1 {
		return 0
	}
	res := lim.Reserve()
	defer res.Cancel()
	return res.Delay()
}

// Charge takes a token for key after the fact. The bucket may go into debt,
// which delays the next Wait.
func (rl *RateLimiter) Charge(key string) {
	rl.limiter(key).Reserve()
}

// Stop ends the expiry loop.
func (rl *RateLimiter) Stop() {
	rl.limiters.Stop()
}

// RateLimitMiddleware limits requests per user, or per client IP before
// authentication.
func RateLimitMiddleware(rl *RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateKey(c)
		if delay := rl.Reserve(key); delay > 0 {
			tooManyRequests(c, logger, key, delay)
			return
		}
		c.Next()
	}
}

// AdmissionRateLimitMiddleware only charges requests the handler admitted.
// Rejections that never reach Pterodactyl (400, 403, 404) are free.
func AdmissionRateLimitMiddleware(rl *RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateKey(c)
		if delay := rl.Wait(key); delay > 0 {
			tooManyRequests(c, logger, key, delay)
			return
		}
		c.Next()

		switch c.Writer.Status() {
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		default:
			rl.Charge(key)
		}
	}
}

func rateKey(c *gin.Context) string {
	if key := c.GetString(ctxUserID); key != "" {
		return key
	}
	return c.ClientIP()
}

func tooManyRequests(c *gin.Context, logger *zap.Logger, key string, delay time.Duration) {
	logger.Warn("rate limit exceeded", zap.String("key", key), zap.String("path", c.FullPath()))
	c.Header("Retry-After", fmt.Sprintf("%.0f", math.Ceil(delay.Seconds())))
	abort(c, http.StatusTooManyRequests, "Terlalu banyak permintaan, coba lagi nanti")
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID := c.GetString(ctxUserID); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Success: false, Error: message})
}
