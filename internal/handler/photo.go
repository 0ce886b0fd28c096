package handler

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/config"
	"devcamper-api/internal/model"
	"devcamper-api/internal/pipeline"
	"devcamper-api/internal/service"
)

// photoField is the multipart field carrying the image.
const photoField = "file"

// PhotoHandler stores uploaded bootcamp photos.
type PhotoHandler struct {
	svc    *service.ResourceService
	dir    string
	logger *slog.Logger
}

// NewPhotoHandler creates a PhotoHandler that writes under cfg.Upload.Dir.
func NewPhotoHandler(svc *service.ResourceService, cfg *config.Config, logger *slog.Logger) *PhotoHandler {
	return &PhotoHandler{
		svc:    svc,
		dir:    cfg.Upload.Dir,
		logger: logger.With("component", "photo_handler"),
	}
}

// Upload saves the image in the file field as photo_<id><ext> and records
// the name on the bootcamp. Size was already checked by the upload stage.
func (h *PhotoHandler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if _, err := h.svc.Get(ctx, service.Bootcamps, id); err != nil {
		return err
	}

	files := pipeline.Files(c)[photoField]
	if len(files) == 0 {
		return apperr.Validation("Please upload a file")
	}
	fh := files[0]
	if !strings.HasPrefix(fh.Header.Get(echo.HeaderContentType), "image") {
		return apperr.Validation("Please upload an image file")
	}

	name := fmt.Sprintf("photo_%s%s", id, strings.ToLower(filepath.Ext(filepath.Base(fh.Filename))))
	if err := h.save(fh, name); err != nil {
		return apperr.Internal("Problem with file upload", err)
	}

	if _, err := h.svc.Update(ctx, service.Bootcamps, id, map[string]any{"photo": name}); err != nil {
		return err
	}
	h.logger.Info("photo uploaded", "bootcamp", id, "file", name, "bytes", fh.Size)
	return c.JSON(http.StatusOK, model.OK(name))
}

func (h *PhotoHandler) save(fh *multipart.FileHeader, name string) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(filepath.Join(h.dir, name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return dst.Close()
}
