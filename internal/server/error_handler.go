package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/webstarter/csrf"
)

// NewHTTPErrorHandler returns the central boundary error handler. It
// dispatches on the typed *csrf.Error variant (never on string matching),
// and renders either a JSON payload or the HTML error page depending on
// what the client accepts.
func NewHTTPErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		code := "EINTERNAL"
		message := "internal server error"

		var csrfErr *csrf.Error
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &csrfErr):
			// Both failure kinds surface identically so callers cannot
			// probe which condition failed.
			status = http.StatusForbidden
			code = csrf.Code
			message = "invalid or missing CSRF token"
		case errors.As(err, &httpErr):
			status = httpErr.Code
			code = "EREQUEST"
			message = fmt.Sprintf("%v", httpErr.Message)
		}

		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			if werr := c.NoContent(status); werr != nil {
				log.Error().Err(werr).Msg("failed to write error response")
			}
			return
		}

		var werr error
		if wantsJSON(c) {
			werr = c.JSON(status, echo.Map{"error": code, "message": message})
		} else {
			werr = c.Render(status, "error.html", echo.Map{
				"Status":  status,
				"Code":    code,
				"Message": message,
			})
			if werr != nil {
				werr = c.String(status, message)
			}
		}
		if werr != nil {
			log.Error().Err(werr).Msg("failed to write error response")
		}
	}
}

// wantsJSON reports whether the client is API-style: either it is calling
// the JSON API or it explicitly prefers JSON over HTML.
func wantsJSON(c echo.Context) bool {
	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		return true
	}

	accept := c.Request().Header.Get(echo.HeaderAccept)

	return strings.Contains(accept, echo.MIMEApplicationJSON) &&
		!strings.Contains(accept, echo.MIMETextHTML)
}
