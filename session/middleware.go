package session

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	// CookieName is the session identifier cookie.
	CookieName = "sid"

	// ContextKey is where the middleware stashes the resolved *Session.
	ContextKey = "session"

	// DefaultTTL is the session lifetime when none is configured.
	DefaultTTL = 24 * time.Hour
)

// MiddlewareConfig controls the session middleware.
type MiddlewareConfig struct {
	Store  Store
	TTL    time.Duration
	Secure bool
}

// Middleware resolves the client session from the sid cookie, creating a
// fresh session (and cookie) when none exists or the stored one is gone.
// The session is exposed to downstream handlers under ContextKey.
func Middleware(cfg MiddlewareConfig) echo.MiddlewareFunc {
	if cfg.Store == nil {
		panic("session: MiddlewareConfig.Store is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			if cookie, err := c.Cookie(CookieName); err == nil && cookie.Value != "" {
				sess, err := cfg.Store.Get(ctx, cookie.Value)
				if err != nil {
					log.Error().Err(err).Msg("session: store lookup failed")
				}
				if sess != nil {
					c.Set(ContextKey, sess)
					return next(c)
				}
				// Stale cookie: fall through and mint a new session.
			}

			id, err := GenerateID()
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "session creation failed").SetInternal(err)
			}

			now := time.Now()
			sess := Session{
				ID:        id,
				CreatedAt: now,
				ExpiresAt: now.Add(cfg.TTL),
			}
			if err := cfg.Store.Create(ctx, sess); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "session creation failed").SetInternal(err)
			}

			c.SetCookie(&http.Cookie{
				Name:     CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(cfg.TTL.Seconds()),
				HttpOnly: true,
				Secure:   cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			c.Set(ContextKey, &sess)

			return next(c)
		}
	}
}

// FromContext returns the session resolved for the current request, or nil.
func FromContext(c echo.Context) *Session {
	sess, _ := c.Get(ContextKey).(*Session)
	return sess
}

// KeyFunc adapts the resolved session into the opaque session key the CSRF
// guard validates tokens against.
func KeyFunc(c echo.Context) string {
	if sess := FromContext(c); sess != nil {
		return sess.ID
	}

	return ""
}
