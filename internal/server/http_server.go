// Package server assembles the echo HTTP server: middleware stack,
// template rendering, error boundary and route registration.
package server

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	webapi "go.pilab.hu/webstarter/api/echo"
	"go.pilab.hu/webstarter/config"
	"go.pilab.hu/webstarter/csrf"
	"go.pilab.hu/webstarter/internal/metrics"
	applog "go.pilab.hu/webstarter/log"
	"go.pilab.hu/webstarter/sanitize"
	"go.pilab.hu/webstarter/session"
	"go.pilab.hu/webstarter/web"
)

// Deps carries the explicitly constructed collaborators the server wires
// together. Nothing here is module-level state.
type Deps struct {
	Config       *config.ServerConfig
	Logger       applog.Logger
	CSRFStore    csrf.Store
	SessionStore session.Store
	API          *webapi.API
}

// NewHTTPServer creates and configures the echo server.
func NewHTTPServer(deps Deps) (*echo.Echo, error) {
	cfg := deps.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	renderer, err := NewTemplateRenderer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build renderer: %w", err)
	}
	e.Renderer = renderer
	e.HTTPErrorHandler = NewHTTPErrorHandler()

	e.Use(middleware.Recover())
	e.Use(RequestLogger(deps.Logger))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self'; frame-ancestors 'none'; form-action 'self'; base-uri 'self'",
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.SiteBaseURL},
		AllowCredentials: true,
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, csrf.HeaderName},
	}))
	e.Use(middleware.Gzip())
	e.Use(MinifyHTML())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RateLimiter(
		middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimitPerSecond)),
	))
	e.Use(sanitize.Middleware())
	e.Use(session.Middleware(session.MiddlewareConfig{
		Store:  deps.SessionStore,
		TTL:    time.Duration(cfg.SessionTTLMin) * time.Minute,
		Secure: cfg.IsProduction(),
	}))
	e.Use(csrf.Guard(csrf.Config{
		Store:          deps.CSRFStore,
		TTL:            time.Duration(cfg.CSRFTokenTTLMin) * time.Minute,
		Secure:         cfg.IsProduction(),
		RequireSession: cfg.CSRFRequireSession,
		SessionKeyFunc: session.KeyFunc,
		ObserveIssue:   metrics.CSRFTokensIssuedTotal.Inc,
		ObserveReject: func(kind csrf.Kind) {
			metrics.CSRFRejectionsTotal.WithLabelValues(kind.String()).Inc()
		},
	}))

	e.StaticFS("/static", echo.MustSubFS(web.FS, "static"))
	e.GET("/healthz", healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	deps.API.RegisterRoutes(e)

	return e, nil
}

func healthz(c echo.Context) error {
	return c.JSON(200, echo.Map{"status": "ok"})
}

// RequestLogger logs one line per request through the shared Logger.
func RequestLogger(logger applog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := map[string]interface{}{
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": c.Request().UserAgent(),
			}
			if err != nil {
				logger.Error(c.Request().Context(), "HTTP Request", err, fields)
			} else {
				logger.Info(c.Request().Context(), "HTTP Request", fields)
			}

			return err
		}
	}
}
