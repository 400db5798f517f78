package acquisition

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"catalog/internal/validation"

	"go.uber.org/zap"
)

// Direct uploads each selected file to blob storage, one after the other.
type Direct struct {
	uploader Uploader
	logger   *zap.Logger
}

// NewDirect creates a Direct acquirer.
func NewDirect(uploader Uploader, logger *zap.Logger) *Direct {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Direct{uploader: uploader, logger: logger}
}

// Variant implements Acquirer.
func (d *Direct) Variant() Variant {
	return VariantDirect
}

// Inspect implements Acquirer.
func (d *Direct) Inspect(images Images) validation.ImageInput {
	metas := make([]validation.FileMeta, 0, len(images.Files))
	for _, f := range images.Files {
		metas = append(metas, validation.FileMeta{Name: f.Name, Size: f.Size})
	}
	return validation.ImageInput{Files: metas}
}

// Acquire uploads the files in input order. The next upload starts only after the current one has
// finished. The first failure aborts the queue; objects already stored for this submission stay
// behind and are logged.
func (d *Direct) Acquire(ctx context.Context, productID string, images Images, onProgress ProgressFunc) ([]string, error) {
	tracker := NewTracker(len(images.Files), onProgress)
	urls := make([]string, 0, len(images.Files))

	for i, f := range images.Files {
		url, err := d.upload(ctx, ObjectPath(productID, i, f.Name), f, tracker)
		if err != nil {
			d.logger.Warn("Image upload failed, remaining uploads aborted",
				zap.String("product_id", productID),
				zap.String("file", f.Name),
				zap.Int("index", i),
				zap.Strings("orphaned_urls", urls),
				zap.Error(err))
			return nil, fmt.Errorf("failed to upload image %q: %w", f.Name, err)
		}
		tracker.Complete()
		urls = append(urls, url)
		d.logger.Debug("Image uploaded",
			zap.String("product_id", productID),
			zap.String("url", url),
			zap.Int("progress", tracker.Percent()))
	}
	return urls, nil
}

func (d *Direct) upload(ctx context.Context, objectPath string, f File, tracker *Tracker) (string, error) {
	if f.Open == nil {
		return "", fmt.Errorf("file %q has no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %q: %w", f.Name, err)
	}
	defer rc.Close()

	return d.uploader.Upload(ctx, objectPath, rc, f.Size, tracker.Transfer)
}

// ObjectPath is the storage path of the index-th image of a product.
func ObjectPath(productID string, index int, name string) string {
	return fmt.Sprintf("products/%s/%d-%s", productID, index, sanitizeName(name))
}

func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), ".-")
	if cleaned == "" {
		return "image"
	}
	return cleaned
}
