package echo

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/webstarter/domain"
	"go.pilab.hu/webstarter/services"
)

type credentialsRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// TokenResponse is the JSON payload returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// RegisterJSON creates a user from a JSON payload.
func (a *API) RegisterJSON(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	user, err := a.users.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return echo.NewHTTPError(http.StatusConflict, "email already registered")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusCreated, user)
}

// Token exchanges credentials for a bearer access token.
func (a *API) Token(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	user, err := a.users.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		log.Error().Err(err).Msg("token issuance failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "token issuance failed")
	}

	token, expiresAt, err := a.tokens.Issue(user)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign access token")
		return echo.NewHTTPError(http.StatusInternalServerError, "token issuance failed")
	}

	return c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
	})
}

// Me returns the authenticated user.
func (a *API) Me(c echo.Context) error {
	user, _ := c.Get(userContextKey).(*domain.User)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	return c.JSON(http.StatusOK, user)
}

// ListUsers returns users, optionally filtered by exact email. The filter
// map is treated as untrusted and sanitized downstream.
func (a *API) ListUsers(c echo.Context) error {
	filter := map[string]any{}
	if email := c.QueryParam("email"); email != "" {
		filter["email"] = strings.ToLower(email)
	}

	users, err := a.users.List(c.Request().Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to list users")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list users")
	}

	return c.JSON(http.StatusOK, users)
}
