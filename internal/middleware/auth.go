package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/training-management/internal/service"
)

// KeycloakAuth validates the Bearer access token against the realm's keys
// and stores the subject, email and role in the context.  Protected routes
// read them through UserID, Email and Role.
func KeycloakAuth(verifier service.TokenVerifier, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return service.Unauthorized("missing bearer token", http.StatusUnauthorized, nil)
			}

			claims, err := verifier.Verify(c.Request().Context(), strings.TrimSpace(raw))
			if err != nil {
				log.Debug("bearer token rejected", zap.String("path", c.Path()), zap.Error(err))
				return service.Unauthorized("invalid or expired token", http.StatusUnauthorized, err)
			}

			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxEmail, strings.ToLower(claims.Email))
			c.Set(ctxRole, claims.Role())
			return next(c)
		}
	}
}
