package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Image acquisition variants.
const (
	AcquisitionDirect = "direct"
	AcquisitionWidget = "widget"
)

// Config holds the service configuration.
type Config struct {
	AppEnv            string
	AppPort           string
	LogLevel          string
	DatabaseDriver    string
	DatabaseDSN       string
	RabbitMQURL       string
	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string
	ImageAcquisition  string
	BlobRoot          string
	PublicBaseURL     string
	UploadPublicPath  string
}

// ErrPlaceholderSecret is returned when JWT_SECRET still holds the sample value.
var ErrPlaceholderSecret = errors.New("JWT_SECRET must be changed from the sample value")

const placeholderSecret = "change-me"

// LoadEnv loads .env.local into the process environment when APP_ENV is "local". A missing file is
// reported so the caller can log it; the system environment still applies.
func LoadEnv() error {
	if os.Getenv("APP_ENV") != "local" {
		return nil
	}
	if err := godotenv.Load(".env.local"); err != nil {
		return fmt.Errorf(".env.local not loaded: %w", err)
	}
	return nil
}

// Load reads the configuration from the environment through v, applying defaults first.
func Load(v *viper.Viper) (Config, error) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "file:catalog.db")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD_HASH", "")
	v.SetDefault("IMAGE_ACQUISITION", AcquisitionDirect)
	v.SetDefault("BLOB_ROOT", "./data/blobs")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("UPLOAD_PUBLIC_PATH", "/files")
	v.AutomaticEnv()

	cfg := Config{
		AppEnv:            v.GetString("APP_ENV"),
		AppPort:           v.GetString("APP_PORT"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		DatabaseDriver:    strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:       v.GetString("DATABASE_DSN"),
		RabbitMQURL:       v.GetString("RABBITMQ_URL"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		AdminUsername:     v.GetString("ADMIN_USERNAME"),
		AdminPasswordHash: v.GetString("ADMIN_PASSWORD_HASH"),
		ImageAcquisition:  strings.ToLower(v.GetString("IMAGE_ACQUISITION")),
		BlobRoot:          v.GetString("BLOB_ROOT"),
		PublicBaseURL:     strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		UploadPublicPath:  "/" + strings.Trim(v.GetString("UPLOAD_PUBLIC_PATH"), "/"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.ImageAcquisition {
	case AcquisitionDirect, AcquisitionWidget:
	default:
		return fmt.Errorf("invalid IMAGE_ACQUISITION %q: want %q or %q", c.ImageAcquisition, AcquisitionDirect, AcquisitionWidget)
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER %q: want sqlite or postgres", c.DatabaseDriver)
	}
	switch c.JWTSecret {
	case "":
		return fmt.Errorf("JWT_SECRET must be set")
	case placeholderSecret:
		return ErrPlaceholderSecret
	}
	return nil
}

// PublicFilesURL is the absolute URL prefix under which stored blobs are served.
func (c Config) PublicFilesURL() string {
	return c.PublicBaseURL + c.UploadPublicPath
}

// IsDevelopment reports whether the service runs on a developer machine.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "local" || c.AppEnv == "development"
}
