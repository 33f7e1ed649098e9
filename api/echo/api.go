// Package echo exposes the application's HTTP surface: server-rendered
// pages, the JSON API and the file upload endpoint.
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/webstarter/config"
	"go.pilab.hu/webstarter/domain"
	"go.pilab.hu/webstarter/services"
	"go.pilab.hu/webstarter/session"
)

// API holds the handlers' dependencies.
type API struct {
	cfg      *config.ServerConfig
	users    *services.UserService
	tokens   *services.TokenService
	sessions session.Store
}

// NewAPI initializes the HTTP API.
func NewAPI(
	cfg *config.ServerConfig,
	users *services.UserService,
	tokens *services.TokenService,
	sessions session.Store,
) *API {
	return &API{
		cfg:      cfg,
		users:    users,
		tokens:   tokens,
		sessions: sessions,
	}
}

// RegisterRoutes registers all application routes.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/", a.HomePage)
	e.GET("/login", a.LoginPage)
	e.POST("/login", a.Login)
	e.GET("/register", a.RegisterPage)
	e.POST("/register", a.Register)
	e.POST("/logout", a.Logout)
	e.POST("/upload", a.Upload)

	api := e.Group("/api")
	api.POST("/register", a.RegisterJSON)
	api.POST("/token", a.Token)
	api.GET("/me", a.Me, a.RequireAuth)
	api.GET("/users", a.ListUsers, a.RequireAuth)
}

// currentUser resolves the signed-in user from the session, or nil.
func (a *API) currentUser(c echo.Context) *domain.User {
	sess := session.FromContext(c)
	if sess == nil || sess.UserID == "" {
		return nil
	}

	user, err := a.users.GetUser(c.Request().Context(), sess.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			log.Error().Err(err).Str("user_id", sess.UserID).Msg("failed to resolve session user")
		}
		return nil
	}

	return user
}

// HomePage renders the landing page.
func (a *API) HomePage(c echo.Context) error {
	return c.Render(http.StatusOK, "home.html", echo.Map{
		"User": a.currentUser(c),
	})
}

// LoginPage renders the login form.
func (a *API) LoginPage(c echo.Context) error {
	return c.Render(http.StatusOK, "login.html", echo.Map{})
}

// Login handles the login form submission and binds the user to the
// current session.
func (a *API) Login(c echo.Context) error {
	email := c.FormValue("email")
	password := c.FormValue("password")

	ctx := c.Request().Context()

	user, err := a.users.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return c.Render(http.StatusUnauthorized, "login.html", echo.Map{
				"Error": "Invalid email or password.",
			})
		}
		log.Error().Err(err).Msg("login failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	sess := session.FromContext(c)
	if sess == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "no session")
	}
	sess.UserID = user.ID
	if err := a.sessions.Update(ctx, *sess); err != nil {
		log.Error().Err(err).Msg("failed to bind user to session")
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	return c.Redirect(http.StatusSeeOther, "/")
}

// RegisterPage renders the registration form.
func (a *API) RegisterPage(c echo.Context) error {
	return c.Render(http.StatusOK, "register.html", echo.Map{})
}

// Register handles the registration form submission.
func (a *API) Register(c echo.Context) error {
	email := c.FormValue("email")
	password := c.FormValue("password")

	_, err := a.users.Register(c.Request().Context(), email, password)
	if err != nil {
		status := http.StatusBadRequest
		message := err.Error()
		if errors.Is(err, domain.ErrDuplicateEmail) {
			status = http.StatusConflict
			message = "That email is already registered."
		}
		return c.Render(status, "register.html", echo.Map{"Error": message})
	}

	return c.Redirect(http.StatusSeeOther, "/login")
}

// Logout deletes the current session. The CSRF token record is left for
// the store's periodic sweep to reclaim.
func (a *API) Logout(c echo.Context) error {
	if sess := session.FromContext(c); sess != nil {
		if err := a.sessions.Delete(c.Request().Context(), sess.ID); err != nil {
			log.Error().Err(err).Msg("failed to delete session")
		}
	}

	c.SetCookie(&http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	return c.Redirect(http.StatusSeeOther, "/")
}
