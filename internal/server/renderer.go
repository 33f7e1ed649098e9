package server

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/labstack/echo/v4"

	"go.pilab.hu/webstarter/config"
	"go.pilab.hu/webstarter/csrf"
	"go.pilab.hu/webstarter/web"
)

// Meta is the SEO metadata injected into every rendered page. Handlers may
// override it per page by putting their own Meta into the render data.
type Meta struct {
	Title       string
	Description string
	Canonical   string
	SiteName    string
}

// TemplateRenderer renders the embedded HTML templates and injects the
// per-request CSRF token and SEO metadata into every page.
type TemplateRenderer struct {
	templates *template.Template
	cfg       *config.ServerConfig
}

// NewTemplateRenderer parses the embedded templates.
func NewTemplateRenderer(cfg *config.ServerConfig) (*TemplateRenderer, error) {
	templates, err := template.ParseFS(web.FS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &TemplateRenderer{
		templates: templates,
		cfg:       cfg,
	}, nil
}

// Render implements echo.Renderer.
func (r *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	values, ok := data.(echo.Map)
	if data == nil {
		values = echo.Map{}
	} else if !ok {
		return r.templates.ExecuteTemplate(w, name, data)
	}

	if _, ok := values["Meta"]; !ok {
		values["Meta"] = r.defaultMeta(c)
	}
	values["CSRFToken"] = csrf.TokenFromContext(c)

	return r.templates.ExecuteTemplate(w, name, values)
}

func (r *TemplateRenderer) defaultMeta(c echo.Context) Meta {
	return Meta{
		Title:       r.cfg.SiteName,
		Description: r.cfg.SiteDescription,
		Canonical:   strings.TrimSuffix(r.cfg.SiteBaseURL, "/") + c.Request().URL.Path,
		SiteName:    r.cfg.SiteName,
	}
}

// PageMeta builds page-specific SEO metadata on top of the site defaults.
func PageMeta(cfg *config.ServerConfig, c echo.Context, title, description string) Meta {
	if description == "" {
		description = cfg.SiteDescription
	}

	return Meta{
		Title:       title + " | " + cfg.SiteName,
		Description: description,
		Canonical:   strings.TrimSuffix(cfg.SiteBaseURL, "/") + c.Request().URL.Path,
		SiteName:    cfg.SiteName,
	}
}
