// Package csrf implements double-submit-cookie CSRF protection with a
// rotating, TTL-bound token per session. Safe requests always receive a
// fresh token; unsafe requests must echo the current token via form field,
// header or cookie, and a successful validation consumes it.
package csrf

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	// CookieName is the cookie carrying the token to the client. It is
	// intentionally not HttpOnly: same-origin script must be able to read
	// it for header-based submission.
	CookieName = "csrf-token"

	// HeaderName is the request header clients echo the token in.
	HeaderName = "x-csrf-token"

	// FormField is the form field clients may submit the token in. It takes
	// priority over the header and the cookie.
	FormField = "_csrf"

	// ContextKey is where the guard exposes the freshly issued token so the
	// rendering layer can embed it in forms and scripts.
	ContextKey = "csrfToken"

	// DefaultTTL bounds how long an issued token stays valid.
	DefaultTTL = time.Hour

	tokenBytes = 32 // 256 bits of entropy, hex-encoded to 64 characters
)

// Config controls the Guard middleware.
type Config struct {
	// Store holds the per-session token records. Required.
	Store Store

	// TTL is the token lifetime. Defaults to DefaultTTL.
	TTL time.Duration

	// Secure sets the Secure attribute on the token cookie. Enable in
	// production deployments behind TLS.
	Secure bool

	// SessionKeyFunc resolves the session key for the current request,
	// returning "" when the client has no session.
	SessionKeyFunc func(c echo.Context) string

	// RequireSession disables the legacy fallback of minting a throwaway
	// key for sessionless safe requests. With the fallback enabled a
	// sessionless client receives a token it can never validate against,
	// silently defeating the protection; with RequireSession such clients
	// simply get no token.
	RequireSession bool

	// ObserveIssue, if set, is called every time a token is issued.
	ObserveIssue func()

	// ObserveReject, if set, is called with the failure kind every time an
	// unsafe request is rejected.
	ObserveReject func(Kind)
}

// Guard returns the CSRF protection middleware.
//
// Safe methods (GET, HEAD, OPTIONS) are never blocked; each one stores a
// fresh token for the session, sets it as the csrf-token cookie and makes
// it available under ContextKey. Note that this re-issue-on-every-GET
// behavior means parallel tabs race to overwrite each other's token; the
// last writer wins.
//
// Unsafe methods must present the current token via FormField, HeaderName
// or CookieName (in that priority order). A successful validation rotates
// the token atomically and sets the new cookie before the next handler
// runs, so rotation is never interleaved with response I/O.
func Guard(cfg Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		panic("csrf: Config.Store is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SessionKeyFunc == nil {
		cfg.SessionKeyFunc = func(echo.Context) string { return "" }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sessionKey := cfg.SessionKeyFunc(c)

			if isSafeMethod(c.Request().Method) {
				return issueToken(c, cfg, sessionKey, next)
			}

			return validateAndRotate(c, cfg, sessionKey, next)
		}
	}
}

func issueToken(c echo.Context, cfg Config, sessionKey string, next echo.HandlerFunc) error {
	if sessionKey == "" {
		if cfg.RequireSession {
			// Fail closed: no session, no token. The request itself still
			// proceeds since safe requests are never blocked.
			return next(c)
		}
		// Legacy fallback: mint a throwaway key. The client can never
		// present this key again, so the token is unusable for validation.
		sessionKey = uuid.NewString()
		log.Warn().
			Str("path", c.Request().URL.Path).
			Msg("csrf: no session key on safe request, minting throwaway key")
	}

	token, err := generateToken()
	if err != nil {
		// Secure randomness failing is a process-level fault, not a
		// per-request condition.
		return echo.NewHTTPError(http.StatusInternalServerError, "token generation failed").SetInternal(err)
	}

	cfg.Store.Put(sessionKey, token, cfg.TTL)
	setTokenCookie(c, token, cfg)
	c.Set(ContextKey, token)

	if cfg.ObserveIssue != nil {
		cfg.ObserveIssue()
	}

	return next(c)
}

func validateAndRotate(c echo.Context, cfg Config, sessionKey string, next echo.HandlerFunc) error {
	candidate := candidateToken(c)

	if sessionKey == "" || candidate == "" {
		return reject(cfg, KindMissingCredentials)
	}

	rotated, err := generateToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "token generation failed").SetInternal(err)
	}

	// Validation and rotation are a single atomic store operation, and the
	// replacement cookie goes out before the handler writes any response.
	if !cfg.Store.Swap(sessionKey, candidate, rotated, cfg.TTL) {
		return reject(cfg, KindInvalidToken)
	}

	setTokenCookie(c, rotated, cfg)
	c.Set(ContextKey, rotated)

	if cfg.ObserveIssue != nil {
		cfg.ObserveIssue()
	}

	return next(c)
}

func reject(cfg Config, kind Kind) error {
	if cfg.ObserveReject != nil {
		cfg.ObserveReject(kind)
	}

	return &Error{Kind: kind}
}

// candidateToken extracts the client-supplied token, honoring the priority
// order: body form field, then header, then cookie. The query string is
// deliberately not a source; tokens in URLs leak through Referer headers
// and access logs.
func candidateToken(c echo.Context) string {
	if v := c.Request().PostFormValue(FormField); v != "" {
		return v
	}
	if v := c.Request().Header.Get(HeaderName); v != "" {
		return v
	}
	if cookie, err := c.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return ""
}

func setTokenCookie(c echo.Context, token string, cfg Config) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.TTL.Seconds()),
		HttpOnly: false,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// TokenFromContext returns the token issued for the current request, if any.
func TokenFromContext(c echo.Context) string {
	token, _ := c.Get(ContextKey).(string)
	return token
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
