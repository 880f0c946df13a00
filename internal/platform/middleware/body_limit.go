package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/bytes"
)

const defaultBodyLimit = 1 << 20

// BodyLimit rejects request bodies larger than limit with 413, by
// Content-Length or while the body is read. limit is a size such as "512Ki",
// "1Mi" or "2MB" (K, M and G are decimal, Ki, Mi and Gi binary); a bare
// number is bytes.
func BodyLimit(limit string) echo.MiddlewareFunc {
	max := parseLimit(limit)
	inner := echomw.BodyLimit(strconv.FormatInt(max, 10))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := inner(next)
		return func(c echo.Context) error {
			err := h(c)
			if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					fmt.Sprintf("Request body exceeds maximum allowed size of %d bytes", max))
			}
			return err
		}
	}
}

// parseLimit falls back to 1 MiB when s is empty, unparseable or not positive.
func parseLimit(s string) int64 {
	n, err := bytes.Parse(s)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n
}
