package services

import (
	"fmt"

	"catalog/internal/validation"
)

// ValidationError blocks a submission before any network call. It carries every field violation.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Violations.Error()
}

// UploadError is a transport failure while acquiring images.
type UploadError struct {
	ProductID string
	Err       error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("image upload for product %s failed: %v", e.ProductID, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// WriteError is a failure to append the product document.
type WriteError struct {
	ProductID string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing product %s failed: %v", e.ProductID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// DeleteError is a failure of the delete sequence. ImageURL is set when an image deletion failed, in
// which case the document was left in place.
type DeleteError struct {
	ProductID string
	ImageURL  string
	Err       error
}

func (e *DeleteError) Error() string {
	if e.ImageURL != "" {
		return fmt.Sprintf("deleting image %s of product %s failed: %v", e.ImageURL, e.ProductID, e.Err)
	}
	return fmt.Sprintf("deleting product %s failed: %v", e.ProductID, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
