package handler // HTTP handlers for the training management API

import (
	"context"  // per-check deadline
	"net/http" // status codes
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// Health returns the health-check endpoint used by load balancers and
// monitoring systems.  It answers 200 when every check passes and 503
// naming the failing dependencies otherwise.
func Health(checks map[string]Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second) // all checks share one deadline
		defer cancel()

		failing := map[string]string{} // dependency name -> error text
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failing[name] = err.Error()
			}
		}
		if len(failing) > 0 {
			// at least one dependency is down; report which
			return c.JSON(http.StatusServiceUnavailable, envelope{Message: "degraded", Errors: failing})
		}
		return c.JSON(http.StatusOK, envelope{Success: true, Data: echo.Map{"status": "ok"}}) // everything reachable
	}
}
