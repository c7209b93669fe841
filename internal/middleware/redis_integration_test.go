//go:build integration

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/iliyamo/training-management/internal/config"
	"github.com/iliyamo/training-management/internal/testutil/containers"
)

type RedisMiddlewareSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisMiddlewareSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisMiddlewareSuite))
}

func (s *RedisMiddlewareSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisMiddlewareSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.10:40000"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func (s *RedisMiddlewareSuite) TestTokenBucketThrottlesAfterCapacity() {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "test:rl",
	}
	e := echo.New()
	e.POST("/api/v1/auth/login", ok, NewTokenBucket(cfg, s.redis.Client, zap.NewNop()))

	for i := 0; i < cfg.Capacity; i++ {
		rec := serve(e, http.MethodPost, "/api/v1/auth/login")
		s.Equal(http.StatusOK, rec.Code)
		s.Equal(strconv.Itoa(cfg.Capacity-1-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := serve(e, http.MethodPost, "/api/v1/auth/login")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	s.Require().NoError(err)
	s.Greater(retry, 0)
	s.LessOrEqual(retry, 60)
	s.Contains(rec.Body.String(), `"success":false`)
}

func (s *RedisMiddlewareSuite) TestTokenBucketKeysByClientIP() {
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 10 * time.Minute, KeyStrategy: "ip", Prefix: "test:rl",
	}
	e := echo.New()
	e.POST("/login", ok, NewTokenBucket(cfg, s.redis.Client, zap.NewNop()))

	s.Equal(http.StatusOK, serve(e, http.MethodPost, "/login").Code)
	s.Equal(http.StatusTooManyRequests, serve(e, http.MethodPost, "/login").Code)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "198.51.100.7:40000"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RedisMiddlewareSuite) TestCacheServesRepeatedListing() {
	cfg := config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "test:cache",
		MaxBodyBytes: 1 << 20,
	}
	var calls atomic.Int32
	e := echo.New()
	handler := func(c echo.Context) error {
		n := calls.Add(1)
		return c.JSON(http.StatusOK, map[string]any{"success": true, "call": n})
	}
	e.GET("/api/v1/admin/batches", handler, NewRedisCache(cfg, s.redis.Client, zap.NewNop()))

	first := serve(e, http.MethodGet, "/api/v1/admin/batches?page=1")
	s.Equal(http.StatusOK, first.Code)
	s.Equal("MISS", first.Header().Get("X-Cache"))

	second := serve(e, http.MethodGet, "/api/v1/admin/batches?page=1")
	s.Equal(http.StatusOK, second.Code)
	s.Equal("HIT", second.Header().Get("X-Cache"))
	s.Equal(first.Body.String(), second.Body.String())
	s.Contains(second.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	s.EqualValues(1, calls.Load())

	other := serve(e, http.MethodGet, "/api/v1/admin/batches?page=2")
	s.Equal("MISS", other.Header().Get("X-Cache"))
	s.EqualValues(2, calls.Load())
}

func (s *RedisMiddlewareSuite) TestCacheSkipsErrorResponses() {
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "test:cache", MaxBodyBytes: 1 << 20,
	}
	var calls atomic.Int32
	e := echo.New()
	handler := func(c echo.Context) error {
		calls.Add(1)
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"success": false})
	}
	e.GET("/api/v1/admin/students", handler, NewRedisCache(cfg, s.redis.Client, zap.NewNop()))

	serve(e, http.MethodGet, "/api/v1/admin/students")
	rec := serve(e, http.MethodGet, "/api/v1/admin/students")
	s.Equal("MISS", rec.Header().Get("X-Cache"))
	s.EqualValues(2, calls.Load())
}
