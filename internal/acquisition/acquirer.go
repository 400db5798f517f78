// Package acquisition resolves the image URLs attached to a product submission, either by uploading
// the raw files itself or by accepting files an upload widget already finalized.
package acquisition

import (
	"context"
	"fmt"
	"io"

	"catalog/internal/blobstore"
	"catalog/internal/validation"

	"go.uber.org/zap"
)

// Variant names an acquisition strategy. It is chosen once at configuration time.
type Variant string

const (
	VariantDirect Variant = "direct"
	VariantWidget Variant = "widget"
)

// ProgressFunc receives aggregate progress as a percentage in [0,100].
type ProgressFunc func(percent int)

// File is one raw image selected by the user.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// Descriptor is a file finalized by the upload widget. URL is preferred; Key is the fallback.
type Descriptor struct {
	URL string `json:"url,omitempty"`
	Key string `json:"key,omitempty"`
}

// Images is the images field of a submission in either shape.
type Images struct {
	Files   []File
	Uploads []Descriptor
}

// Acquirer turns the images of a submission into an ordered list of URLs.
type Acquirer interface {
	Variant() Variant
	// Inspect returns the shape the validation schema checks. It performs no I/O.
	Inspect(images Images) validation.ImageInput
	// Acquire resolves the URLs. productID namespaces any stored objects.
	Acquire(ctx context.Context, productID string, images Images, onProgress ProgressFunc) ([]string, error)
}

// Uploader is the blob storage capability the direct variant needs.
type Uploader interface {
	Upload(ctx context.Context, objectPath string, r io.Reader, size int64, onProgress blobstore.ProgressFunc) (string, error)
}

// New builds the acquirer for variant. filesURL is the public prefix widget keys are resolved against.
func New(variant Variant, uploader Uploader, filesURL string, logger *zap.Logger) (Acquirer, error) {
	switch variant {
	case VariantDirect:
		if uploader == nil {
			return nil, fmt.Errorf("direct image acquisition requires blob storage")
		}
		return NewDirect(uploader, logger), nil
	case VariantWidget:
		return NewWidget(filesURL), nil
	default:
		return nil, fmt.Errorf("unknown image acquisition variant %q", variant)
	}
}

// SchemaMode maps a variant to the image shape the validation schema expects.
func SchemaMode(variant Variant) validation.ImageMode {
	if variant == VariantWidget {
		return validation.ImageURLs
	}
	return validation.ImageFiles
}

func emit(onProgress ProgressFunc, percent int) {
	if onProgress != nil {
		onProgress(percent)
	}
}
