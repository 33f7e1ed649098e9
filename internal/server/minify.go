package server

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"
	mjs "github.com/tdewolff/minify/v2/js"
)

// MinifyHTML buffers the response and minifies HTML and JavaScript bodies
// before they go out. Other content types pass through unmodified.
func MinifyHTML() echo.MiddlewareFunc {
	m := minify.New()
	m.AddFunc("text/html", mhtml.Minify)
	m.AddFunc("application/javascript", mjs.Minify)
	m.AddFunc("text/javascript", mjs.Minify)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			original := res.Writer

			buf := new(bytes.Buffer)
			capture := &captureWriter{ResponseWriter: original, buf: buf}
			res.Writer = capture

			err := next(c)
			res.Writer = original

			if !capture.wroteHeader && buf.Len() == 0 {
				// Nothing written (e.g. the handler errored before
				// responding); leave it to the error handler.
				return err
			}

			body := buf.Bytes()
			mediatype, _, _ := mime.ParseMediaType(res.Header().Get(echo.HeaderContentType))
			if _, _, fn := m.Match(mediatype); fn != nil {
				if minified, merr := m.Bytes(mediatype, body); merr == nil {
					body = minified
				} else {
					log.Debug().Err(merr).Str("mediatype", mediatype).Msg("minification failed, sending original body")
				}
			}

			status := capture.status
			if status == 0 {
				status = http.StatusOK
			}
			res.Header().Set(echo.HeaderContentLength, strconv.Itoa(len(body)))
			original.WriteHeader(status)
			if _, werr := original.Write(body); werr != nil {
				return werr
			}

			return err
		}
	}
}

// captureWriter swallows writes into a buffer and defers the status line so
// Content-Length can be fixed up after minification.
type captureWriter struct {
	http.ResponseWriter
	buf         *bytes.Buffer
	status      int
	wroteHeader bool
}

func (w *captureWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
}

func (w *captureWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}
