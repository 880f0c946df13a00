package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/fhir-gateway/internal/platform/resource"
)

// ErrorHandler renders errors that escape the handlers (unknown routes,
// oversized bodies, timeouts, panics) in the same envelope the handlers use.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "Something went wrong"
		var he *echo.HTTPError
		switch {
		case errors.As(err, &he) && he.Code == http.StatusNotFound && he.Message == http.StatusText(http.StatusNotFound):
			status = he.Code
			message = fmt.Sprintf("Route %s not found", c.Request().URL.RequestURI())
		case he != nil:
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		default:
			logger.Error().Err(err).Msg("unhandled error")
		}

		body := resource.ErrorResponse{
			Success: false,
			Error:   resource.ErrorLabel(status),
			Message: message,
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
