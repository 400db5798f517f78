package services

import (
	"context"
	"errors"
	"fmt"

	"catalog/internal/acquisition"
	"catalog/internal/blobstore"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/validation"

	"go.uber.org/zap"
)

// ImageRemover deletes a stored image by URL. A missing image is reported as blobstore.ErrObjectNotFound.
type ImageRemover interface {
	Delete(ctx context.Context, ref string) error
}

// ProductService handles the product submission and deletion workflow.
type ProductService struct {
	repo     repositories.ProductRepository
	schema   *validation.Schema
	acquirer acquisition.Acquirer
	remover  ImageRemover
	logger   *zap.Logger
}

// NewProductService creates a new ProductService. remover may be nil when image lifecycle is owned
// by the upload provider; deletes then only remove the document.
func NewProductService(repo repositories.ProductRepository, acquirer acquisition.Acquirer, remover ImageRemover, logger *zap.Logger) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		repo:     repo,
		schema:   validation.NewSchema(acquisition.SchemaMode(acquirer.Variant())),
		acquirer: acquirer,
		remover:  remover,
		logger:   logger,
	}
}

// Variant reports the configured image acquisition variant.
func (s *ProductService) Variant() acquisition.Variant {
	return s.acquirer.Variant()
}

// GetAllProducts retrieves all products, newest first.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	return s.repo.ListByCreatedDesc(ctx)
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// SubmitProduct validates the submission, acquires its images and appends exactly one product.
// Nothing touches the network when validation fails. No step is retried.
func (s *ProductService) SubmitProduct(ctx context.Context, raw validation.RawProduct, images acquisition.Images, onProgress acquisition.ProgressFunc) (*models.Product, error) {
	draft, violations := s.schema.Validate(raw, s.acquirer.Inspect(images))
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	productID := s.repo.NewID()
	urls, err := s.acquirer.Acquire(ctx, productID, images, onProgress)
	if err != nil {
		s.logger.Error("Image acquisition failed", zap.String("product_id", productID), zap.Error(err))
		return nil, &UploadError{ProductID: productID, Err: err}
	}

	product := &models.Product{
		ID:               productID,
		Name:             draft.Name,
		ShortDescription: draft.ShortDescription,
		FullDescription:  draft.FullDescription,
		RegularPrice:     draft.RegularPrice,
		SalePrice:        draft.SalePrice,
		Tags:             ParseTags(draft.Tags),
		ImageURLs:        urls,
	}
	if err := s.repo.Append(ctx, product); err != nil {
		s.logger.Error("Failed to write product",
			zap.String("product_id", productID),
			zap.Strings("image_urls", urls),
			zap.Error(err))
		return nil, &WriteError{ProductID: productID, Err: err}
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("name", product.Name),
		zap.Int("images", len(product.ImageURLs)))
	return product, nil
}

// DeleteProduct removes every image of the product, then the product itself. An image that is
// already gone counts as removed. Any other image failure stops the sequence and leaves the document
// in place.
func (s *ProductService) DeleteProduct(ctx context.Context, id string, imageURLs []string) error {
	if s.remover != nil {
		for _, url := range imageURLs {
			err := s.remover.Delete(ctx, url)
			switch {
			case err == nil:
			case errors.Is(err, blobstore.ErrObjectNotFound):
				s.logger.Info("Image already absent, treating as deleted",
					zap.String("product_id", id),
					zap.String("url", url))
			default:
				s.logger.Error("Failed to delete product image, product kept",
					zap.String("product_id", id),
					zap.String("url", url),
					zap.Error(err))
				return &DeleteError{ProductID: id, ImageURL: url, Err: err}
			}
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete product", zap.String("product_id", id), zap.Error(err))
		return &DeleteError{ProductID: id, Err: err}
	}

	s.logger.Info("Product deleted", zap.String("product_id", id), zap.Int("images", len(imageURLs)))
	return nil
}

// DeleteProductByID deletes a product using the image URLs stored on its record.
func (s *ProductService) DeleteProductByID(ctx context.Context, id string) error {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return &DeleteError{ProductID: id, Err: fmt.Errorf("failed to load product: %w", err)}
	}
	return s.DeleteProduct(ctx, id, product.ImageURLs)
}
