package echo

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/webstarter/internal/metrics"
)

var allowedUploadExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".pdf":  true,
	".txt":  true,
}

// Upload accepts a multipart file, enforces the size and extension policy
// and stores it under a random name so uploaded filenames never reach the
// filesystem.
func (a *API) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	if fileHeader.Size > a.cfg.UploadMaxBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds the %d byte limit", a.cfg.UploadMaxBytes))
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedUploadExtensions[ext] {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, "file type not allowed")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read upload").SetInternal(err)
	}
	defer src.Close()

	if err := os.MkdirAll(a.cfg.UploadDir, 0o750); err != nil {
		log.Error().Err(err).Msg("failed to create upload directory")
		return echo.NewHTTPError(http.StatusInternalServerError, "upload failed")
	}

	name := uuid.NewString() + ext
	dstPath := filepath.Join(a.cfg.UploadDir, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to create upload file")
		return echo.NewHTTPError(http.StatusInternalServerError, "upload failed")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, a.cfg.UploadMaxBytes)); err != nil {
		log.Error().Err(err).Msg("failed to store upload")
		return echo.NewHTTPError(http.StatusInternalServerError, "upload failed")
	}

	metrics.UploadsTotal.Inc()
	log.Info().Str("file", name).Int64("size", fileHeader.Size).Msg("file uploaded")

	return c.JSON(http.StatusCreated, echo.Map{"filename": name})
}
