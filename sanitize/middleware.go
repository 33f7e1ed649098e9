package sanitize

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Middleware rewrites JSON request bodies through Clean before they reach
// handlers, so operator keys never enter binding code or database filters.
// Non-JSON and empty bodies pass through untouched.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			contentType := req.Header.Get(echo.HeaderContentType)
			if req.Body == nil || !strings.HasPrefix(contentType, echo.MIMEApplicationJSON) {
				return next(c)
			}

			body, err := io.ReadAll(req.Body)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body").SetInternal(err)
			}
			if len(bytes.TrimSpace(body)) == 0 {
				req.Body = io.NopCloser(bytes.NewReader(body))
				return next(c)
			}

			var decoded any
			if err := json.Unmarshal(body, &decoded); err != nil {
				// Leave malformed JSON for the handler's binder to reject.
				req.Body = io.NopCloser(bytes.NewReader(body))
				return next(c)
			}

			cleaned, err := json.Marshal(Clean(decoded))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "failed to sanitize request body").SetInternal(err)
			}

			req.Body = io.NopCloser(bytes.NewReader(cleaned))
			req.ContentLength = int64(len(cleaned))

			return next(c)
		}
	}
}
