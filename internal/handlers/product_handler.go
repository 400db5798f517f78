package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"catalog/internal/acquisition"
	"catalog/internal/liveview"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/services"
	"catalog/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// GenericFailureMessage is shown for every failure that is not a validation error.
const GenericFailureMessage = "Something went wrong, please try again."

const defaultKeepAlive = 15 * time.Second

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service   *services.ProductService
	hub       *liveview.Hub
	logger    *zap.Logger
	keepAlive time.Duration
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, hub *liveview.Hub, logger *zap.Logger) *ProductHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductHandler{
		service:   service,
		hub:       hub,
		logger:    logger,
		keepAlive: defaultKeepAlive,
	}
}

// RegisterRoutes registers the product routes with the Fiber app.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleGetProducts)
	productRoutes.Get("/live", h.HandleLiveProducts)
	productRoutes.Get("/:id", h.HandleGetProductByID)
	productRoutes.Post("/", h.HandleSubmitProduct)
	productRoutes.Delete("/:id", h.HandleDeleteProduct)
}

// HandleGetProducts returns one snapshot of all products, newest first.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	products, err := h.service.GetAllProducts(c.UserContext())
	if err != nil {
		h.logger.Error("Error getting all products", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": GenericFailureMessage,
		})
	}
	return c.JSON(nonNil(products))
}

// HandleGetProductByID retrieves a single product by its ID.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	productID := c.Params("id")
	product, err := h.service.GetProductByID(c.UserContext(), productID)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Product with ID %s not found", productID),
			})
		}
		h.logger.Error("Error getting product by ID", zap.String("product_id", productID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": GenericFailureMessage,
		})
	}
	return c.JSON(product)
}

// HandleLiveProducts streams the product list as Server-Sent Events. Every event carries the full
// list; the stream stays open until the client goes away or the server shuts down.
func (h *ProductHandler) HandleLiveProducts(c *fiber.Ctx) error {
	view, cancel, err := h.hub.Open(c.UserContext())
	if err != nil {
		h.logger.Error("Error opening live product view", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"message": GenericFailureMessage,
		})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	keepAlive := h.keepAlive
	logger := h.logger
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case snapshot, ok := <-view.Snapshots():
				if !ok {
					return
				}
				if err := writeSnapshot(w, snapshot); err != nil {
					logger.Debug("Live client went away", zap.Error(err))
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					logger.Debug("Live client went away", zap.Error(err))
					return
				}
			}
		}
	}))
	return nil
}

func writeSnapshot(w *bufio.Writer, snapshot []models.Product) error {
	data, err := json.Marshal(nonNil(snapshot))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

// submitRequest is the JSON body of a submission whose images were already stored by the upload
// widget.
type submitRequest struct {
	validation.RawProduct
	Images []acquisition.Descriptor `json:"images"`
}

// HandleSubmitProduct validates and stores a new product. Direct acquisition expects a multipart
// form with the raw image files; the upload widget variant expects JSON with finalized descriptors.
func (h *ProductHandler) HandleSubmitProduct(c *fiber.Ctx) error {
	raw, images, err := h.parseSubmission(c)
	if err != nil {
		h.logger.Warn("Error parsing product submission", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message":   "Invalid request body",
			"resetForm": false,
		})
	}

	lastProgress := 0
	onProgress := func(percent int) {
		lastProgress = percent
		h.logger.Debug("Submission progress", zap.Int("percent", percent))
	}

	product, err := h.service.SubmitProduct(c.UserContext(), raw, images, onProgress)
	if err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message":   "Validation failed",
				"errors":    validationErr.Violations.Fields(),
				"resetForm": false,
			})
		}
		h.logger.Error("Error submitting product", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message":   GenericFailureMessage,
			"resetForm": false,
			"progress":  lastProgress,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Product created successfully",
		"product":   product,
		"resetForm": true,
		"progress":  100,
	})
}

func (h *ProductHandler) parseSubmission(c *fiber.Ctx) (validation.RawProduct, acquisition.Images, error) {
	if h.service.Variant() == acquisition.VariantWidget {
		var req submitRequest
		if err := c.BodyParser(&req); err != nil {
			return validation.RawProduct{}, acquisition.Images{}, err
		}
		return req.RawProduct, acquisition.Images{Uploads: req.Images}, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return validation.RawProduct{}, acquisition.Images{}, err
	}
	raw := validation.RawProduct{
		Name:             formValue(form, "name"),
		ShortDescription: formValue(form, "shortDescription"),
		FullDescription:  formValue(form, "fullDescription"),
		RegularPrice:     validation.NumberInput(formValue(form, "regularPrice")),
		Tags:             formValue(form, "tags"),
	}
	if values, ok := form.Value["salePrice"]; ok && len(values) > 0 {
		sale := validation.NumberInput(values[0])
		raw.SalePrice = &sale
	}

	var files []acquisition.File
	for _, fh := range form.File["images"] {
		files = append(files, multipartFile(fh))
	}
	return raw, acquisition.Images{Files: files}, nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func multipartFile(fh *multipart.FileHeader) acquisition.File {
	return acquisition.File{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// deleteRequest optionally names the image URLs to remove. When omitted, the stored record's URLs
// are used.
type deleteRequest struct {
	ImageURLs *[]string `json:"imageUrls"`
}

// HandleDeleteProduct deletes a product and its images.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	productID := c.Params("id")

	var req deleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			h.logger.Warn("Error parsing delete request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Invalid request body",
			})
		}
	}

	var err error
	if req.ImageURLs != nil {
		err = h.service.DeleteProduct(c.UserContext(), productID, *req.ImageURLs)
	} else {
		err = h.service.DeleteProductByID(c.UserContext(), productID)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Product with ID %s not found", productID),
			})
		}
		h.logger.Error("Error deleting product", zap.String("product_id", productID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": GenericFailureMessage,
		})
	}

	return c.JSON(fiber.Map{
		"message": "Product deleted successfully",
	})
}

func nonNil(products []models.Product) []models.Product {
	if products == nil {
		return []models.Product{}
	}
	return products
}

// isMultipart reports whether the request carries a multipart form.
func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm)
}
