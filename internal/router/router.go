package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"  // echo web framework used for routing
	"github.com/redis/go-redis/v9" // shared client for the limiter and the cache
	"go.uber.org/zap"              // structured logger handed to middleware

	"github.com/iliyamo/training-management/internal/config"     // rate-limit and cache settings
	"github.com/iliyamo/training-management/internal/handler"    // HTTP handlers
	"github.com/iliyamo/training-management/internal/middleware" // bearer auth, roles, limiter, cache
	"github.com/iliyamo/training-management/internal/model"      // role names
	"github.com/iliyamo/training-management/internal/service"    // TokenVerifier interface
)

// Handlers groups everything Register mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Students *handler.StudentHandler
	Batches  *handler.BatchHandler
	Admin    *handler.AdminHandler
	Health   echo.HandlerFunc
}

// Deps are the cross-cutting pieces the middleware needs.  Redis may be nil,
// which turns rate limiting and response caching off.
type Deps struct {
	Verifier  service.TokenVerifier
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Log       *zap.Logger
}

// Register mounts every route under /api/v1 plus /healthz.
func Register(e *echo.Echo, h Handlers, d Deps) {
	// Map GET /healthz to the health handler.  Load balancers poll it and
	// get 503 while Mongo or Redis is unreachable.
	e.GET("/healthz", h.Health)

	auth := middleware.KeycloakAuth(d.Verifier, d.Log)              // verifies the Keycloak bearer token
	admin := middleware.RequireRole(model.RoleAdmin)                // admin-only routes
	student := middleware.RequireRole(model.RoleStudent)            // student-only routes
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log) // throttles credential endpoints

	v1 := e.Group("/api/v1")

	// ---- Auth ----
	// Login and signup accept credentials, so both sit behind the limiter.
	a := v1.Group("/auth")
	a.POST("/login", h.Auth.Login, limit)
	a.POST("/signup", h.Auth.Signup, limit)
	a.POST("/refresh", h.Auth.Refresh) // exchanges a refresh token at Keycloak
	a.GET("/me", h.Auth.Me, auth)      // local profile of the token holder

	// ---- Students ----
	// Every student route needs a token; the role decides which ones.
	s := v1.Group("/students", auth)
	s.GET("/me/dashboard", h.Students.Dashboard, student)
	s.POST("/enroll", h.Students.Enroll, admin) // creates the account, links the batch, sends the welcome mail
	s.GET("/:id", h.Students.Get, admin)

	// ---- Batches ----
	b := v1.Group("/batches", auth, admin)
	b.POST("", h.Batches.Create)
	b.GET("", h.Batches.List)
	b.POST("/:batchId/students", h.Batches.AssignStudents)
	b.GET("/:batchId/progress", h.Batches.Progress)

	// ---- Admin dashboard (cached) ----
	// Listings are served from Redis for a short TTL; without Redis the
	// cache middleware is a pass-through.
	ad := v1.Group("/admin", auth, admin, middleware.NewRedisCache(d.Cache, d.Redis, d.Log))
	ad.GET("/dashboard", h.Admin.Dashboard)
	ad.GET("/batches", h.Admin.Batches)
	ad.GET("/students", h.Admin.Students)
}
