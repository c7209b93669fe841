package middleware // middleware provides shared request processing for handlers

import (
	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/iliyamo/training-management/internal/service" // Forbidden error rendered by the error handler
)

// RequireRole lets the request through only when the role stored by
// KeycloakAuth is one of roles.  It must be registered after KeycloakAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	// Build a set of allowed roles for constant-time lookups.
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A missing role reads as "" and is never allowed.
			if !allowed[Role(c)] {
				return service.Forbidden("insufficient role for this resource") // 403 envelope
			}
			return next(c) // otherwise call the next handler in the chain
		}
	}
}
