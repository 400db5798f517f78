// Package server assembles the HTTP surface of the catalog.
package server

import (
	"errors"
	"time"

	"catalog/internal/acquisition"
	"catalog/internal/blobstore"
	"catalog/internal/handlers"
	"catalog/internal/liveview"
	"catalog/internal/middleware"
	"catalog/internal/services"
	"catalog/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Products *services.ProductService
	Auth     *services.AuthService
	Hub      *liveview.Hub
	Store    *blobstore.Store
	Logger   *zap.Logger

	// FilesPath is the URL path stored blobs are served under, for example "/files".
	FilesPath string
	// RequestLog enables the per-request access log.
	RequestLog bool
}

// NewApp builds the Fiber app with every route registered.
func NewApp(d Deps) *fiber.App {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "catalog",
		DisableStartupMessage: true,
		// room for a full image batch plus the text fields
		BodyLimit:    int(validation.MaxImages*validation.MaxImageBytes) + 1<<20,
		ErrorHandler: errorHandler(log),
	})

	app.Use(recover.New())
	if d.RequestLog {
		app.Use(logger.New())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":      "healthy",
			"time":        time.Now().Format(time.RFC3339),
			"acquisition": d.Products.Variant(),
			"liveViews":   d.Hub.Len(),
		})
	})

	if d.Store != nil && d.FilesPath != "" {
		app.Use(d.FilesPath, filesystem.New(filesystem.Config{
			Root:   afero.NewHttpFs(d.Store.FS()),
			MaxAge: int((24 * time.Hour).Seconds()),
		}))
	}

	apiV1 := app.Group("/api/v1")

	// Authentication routes (public)
	handlers.NewAuthHandler(d.Auth, log).RegisterRoutes(apiV1)

	protectedRoutes := apiV1.Group("", middleware.AuthRequired(d.Auth, log))
	handlers.NewProductHandler(d.Products, d.Hub, log).RegisterRoutes(protectedRoutes)
	if d.Products.Variant() == acquisition.VariantWidget && d.Store != nil {
		handlers.NewUploadHandler(d.Store, log).RegisterRoutes(protectedRoutes)
	}

	return app
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := handlers.GenericFailureMessage

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			if code < fiber.StatusInternalServerError {
				message = fiberErr.Message
			}
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{
			"message": message,
		})
	}
}
