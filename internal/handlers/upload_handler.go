package handlers

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"catalog/internal/acquisition"
	"catalog/internal/blobstore"
	"catalog/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadHandler is the server side of the upload widget. It stores a batch of image files and
// returns their descriptors, which the client then submits with the product.
type UploadHandler struct {
	store  *blobstore.Store
	logger *zap.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(store *blobstore.Store, logger *zap.Logger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandler{store: store, logger: logger}
}

// RegisterRoutes registers the upload routes with the Fiber app.
func (h *UploadHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/uploads", h.HandleUpload)
}

// HandleUpload stores every file of the "files" field. The batch is all or nothing: when one file
// fails, the files already stored for it are removed again.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	if !isMultipart(c) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Expected a multipart form",
		})
	}
	form, err := c.MultipartForm()
	if err != nil {
		h.logger.Warn("Error parsing upload form", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
		})
	}

	files := form.File["files"]
	if msg := checkBatch(files); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  fiber.Map{"files": msg},
		})
	}

	ctx := c.UserContext()
	stored := make([]acquisition.Descriptor, 0, len(files))
	for _, fh := range files {
		key := UploadKey(fh.Filename)
		url, err := h.save(ctx, key, fh)
		if err != nil {
			h.logger.Error("Upload failed, discarding batch",
				zap.String("file", fh.Filename),
				zap.Int("stored", len(stored)),
				zap.Error(err))
			h.discard(ctx, stored)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": GenericFailureMessage,
			})
		}
		stored = append(stored, acquisition.Descriptor{URL: url, Key: key})
	}

	h.logger.Info("Upload batch stored", zap.Int("files", len(stored)))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"files": stored,
	})
}

func checkBatch(files []*multipart.FileHeader) string {
	switch {
	case len(files) == 0:
		return "at least one image is required"
	case len(files) > validation.MaxImages:
		return fmt.Sprintf("at most %d images are allowed", validation.MaxImages)
	}
	for _, fh := range files {
		if fh.Size > validation.MaxImageBytes {
			return "each image must be 5 MiB or smaller"
		}
	}
	return ""
}

func (h *UploadHandler) save(ctx context.Context, key string, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %q: %w", fh.Filename, err)
	}
	defer f.Close()
	return h.store.Upload(ctx, key, f, fh.Size, nil)
}

func (h *UploadHandler) discard(ctx context.Context, stored []acquisition.Descriptor) {
	for _, d := range stored {
		if err := h.store.Delete(ctx, d.Key); err != nil {
			h.logger.Warn("Failed to remove file of discarded batch", zap.String("key", d.Key), zap.Error(err))
		}
	}
}

// UploadKey returns a fresh storage key for an uploaded file, keeping its extension.
func UploadKey(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			ext = ""
			break
		}
	}
	if ext == "" {
		return "uploads/" + uuid.NewString()
	}
	return "uploads/" + uuid.NewString() + "." + ext
}
