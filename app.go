package main

import (
	"context"
	"errors"
	"fmt"

	"catalog/internal/acquisition"
	"catalog/internal/blobstore"
	"catalog/internal/config"
	"catalog/internal/liveview"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/server"
	"catalog/internal/services"
	"catalog/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// application owns every long-lived resource of the serve command.
type application struct {
	app    *fiber.App
	hub    *liveview.Hub
	db     *gorm.DB
	mq     *rabbitmq.Client
	logger *zap.Logger
}

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	default:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	}

	logLevel := gormlogger.Silent
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Warn
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(logLevel)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.DatabaseDriver, err)
	}
	return db, nil
}

func migrate(ctx context.Context, db *gorm.DB) error {
	return repositories.NewGORMProductRepository(db).Migrate(ctx)
}

// newApplication wires storage, the event bus, the live view and the HTTP layer.
func newApplication(ctx context.Context, cfg config.Config, logger *zap.Logger) (*application, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		return nil, err
	}

	repo := repositories.NewNotifyingProductRepository(repositories.NewGORMProductRepository(db))
	hub := liveview.NewHub(repo, logger.Named("liveview"))
	repo.OnChange(hub.OnChange)

	a := &application{hub: hub, db: db, logger: logger}

	if cfg.RabbitMQURL != "" {
		mq, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, logger.Named("rabbitmq"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mq = mq
		repo.OnChange(func(event models.ProductEvent) {
			if err := mq.PublishProductEvent(event); err != nil {
				logger.Warn("Failed to publish product event",
					zap.String("type", string(event.Type)),
					zap.String("product_id", event.ProductID),
					zap.Error(err))
			}
		})
		err = mq.ConsumeProductEvents(func(event models.ProductEvent) error {
			hub.OnChange(event)
			return nil
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	} else {
		logger.Info("RABBITMQ_URL not set, live views only follow local writes")
	}

	store, err := blobstore.NewOsStore(cfg.BlobRoot, cfg.PublicFilesURL())
	if err != nil {
		a.Close()
		return nil, err
	}

	variant := acquisition.Variant(cfg.ImageAcquisition)
	acquirer, err := acquisition.New(variant, store, cfg.PublicFilesURL(), logger.Named("acquisition"))
	if err != nil {
		a.Close()
		return nil, err
	}
	// Widget uploads are owned by the upload flow, deletes only remove the document.
	var remover services.ImageRemover
	if variant == acquisition.VariantDirect {
		remover = store
	}

	productService := services.NewProductService(repo, acquirer, remover, logger.Named("products"))
	authService := services.NewAuthService(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret)
	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, admin login is disabled")
	}

	a.app = server.NewApp(server.Deps{
		Products:   productService,
		Auth:       authService,
		Hub:        hub,
		Store:      store,
		Logger:     logger.Named("http"),
		FilesPath:  cfg.UploadPublicPath,
		RequestLog: cfg.IsDevelopment(),
	})

	logger.Info("Application assembled",
		zap.String("acquisition", string(variant)),
		zap.String("database", cfg.DatabaseDriver),
		zap.Bool("event_bus", a.mq != nil))
	return a, nil
}

// Run serves HTTP and drives the live view until ctx is done, then shuts the server down.
func (a *application) Run(ctx context.Context, addr string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hub.Run(ctx)
	})
	g.Go(func() error {
		a.logger.Info("Starting server", zap.String("addr", addr))
		if err := a.app.Listen(addr); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("Shutting down server...")
		// Closing the hub ends every open event stream so Shutdown does not wait on them.
		a.hub.Close()
		if err := a.app.Shutdown(); err != nil {
			return fmt.Errorf("error during Fiber shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("Server gracefully stopped")
	return nil
}

// Close releases the event bus and database connections.
func (a *application) Close() {
	a.hub.Close()
	if a.mq != nil {
		if err := a.mq.Close(); err != nil {
			a.logger.Warn("Error closing RabbitMQ client", zap.Error(err))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.logger.Warn("Error closing database", zap.Error(err))
		}
	}
}
