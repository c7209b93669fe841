package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/training-management/internal/repository"
	"github.com/iliyamo/training-management/internal/service"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func created(c echo.Context, msg string, data any) error {
	return c.JSON(http.StatusCreated, envelope{Success: true, Message: msg, Data: data})
}

// bind decodes the JSON body into dst.  A malformed body is a validation
// error.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return service.ValidationError("invalid request body", nil)
	}
	return nil
}

// pageFrom reads ?page= and ?limit=.  Out-of-range values are clamped;
// non-numeric values are rejected.
func pageFrom(c echo.Context) (repository.Page, error) {
	var p repository.Page
	fields := map[string]string{}
	for name, dst := range map[string]*int{"page": &p.Page, "limit": &p.Limit} {
		raw := strings.TrimSpace(c.QueryParam(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields[name] = name + " must be an integer"
			continue
		}
		*dst = n
	}
	if len(fields) > 0 {
		return p, service.ValidationError("invalid pagination", fields)
	}
	return p.Normalize(), nil
}
