package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/training-management/internal/service"
)

// ErrorHandler renders every error returned by handlers and middleware as
// the failure envelope.  Service errors map by kind; echo's own errors keep
// their status; anything else is a 500 with a generic message.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := render(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}

func render(err error) (int, envelope) {
	var se *service.Error
	if errors.As(err, &se) && se.Kind != service.KindInternal {
		return statusOf(se), envelope{Message: se.Message, Errors: se.Fields}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok || he.Code >= http.StatusInternalServerError {
			msg = http.StatusText(he.Code)
		}
		return he.Code, envelope{Message: msg}
	}
	return http.StatusInternalServerError, envelope{Message: "internal server error"}
}

func statusOf(se *service.Error) int {
	switch se.Kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		if se.Status >= 400 && se.Status < 500 {
			return se.Status
		}
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindIdentityProvider:
		return http.StatusBadGateway
	}
	// Configuration, InvalidToken, Internal
	return http.StatusInternalServerError
}
