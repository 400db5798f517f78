package repositories

import (
	"context"
	"errors"

	"catalog/internal/models"
)

// ErrProductNotFound is returned when no product has the requested ID.
var ErrProductNotFound = errors.New("product not found")

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	// NewID reserves a fresh product identifier. The same identifier namespaces uploaded images and
	// becomes the document key on Append.
	NewID() string
	// Append stores a new product and stamps its CreatedAt. An empty ID is assigned by the store.
	Append(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	// ListByCreatedDesc returns every product, newest first.
	ListByCreatedDesc(ctx context.Context) ([]models.Product, error)
	Delete(ctx context.Context, id string) error
}
