package middleware

// identity.go holds the context keys KeycloakAuth fills and the accessors
// handlers use to read them back.

import "github.com/labstack/echo/v4"

const (
	ctxUserID = "user_id" // Keycloak subject
	ctxEmail  = "email"
	ctxRole   = "role" // model.RoleAdmin or model.RoleStudent
)

// UserID returns the authenticated subject, or "" on public routes.
func UserID(c echo.Context) string { return str(c, ctxUserID) }

// Email returns the authenticated user's email, or "".
func Email(c echo.Context) string { return str(c, ctxEmail) }

// Role returns the authenticated user's role, or "".
func Role(c echo.Context) string { return str(c, ctxRole) }

func str(c echo.Context, key string) string {
	s, _ := c.Get(key).(string)
	return s
}

// userID is the rate limiter's view of the caller: the subject when
// authenticated, "guest" otherwise.
func userID(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "guest"
}
