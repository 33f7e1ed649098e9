package echo

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// userContextKey is where RequireAuth stashes the authenticated user.
const userContextKey = "user"

// RequireAuth validates the Authorization bearer token and loads the user
// it was issued for.
func (a *API) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format: expected Bearer token")
		}

		userID, err := a.tokens.Verify(parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		user, err := a.users.GetUser(c.Request().Context(), userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		c.Set(userContextKey, user)

		return next(c)
	}
}
