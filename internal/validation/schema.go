// Package validation holds the declarative rules a product submission must satisfy before any
// network call is made.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxImages bounds the number of images attached to one product.
	MaxImages = 3
	// MaxImageBytes bounds the size of one uploaded image file.
	MaxImageBytes int64 = 5 << 20
)

// ImageMode tells the schema which shape the images field takes.
type ImageMode int

const (
	// ImageFiles expects raw file selections (direct upload).
	ImageFiles ImageMode = iota
	// ImageURLs expects already finalized URLs (upload widget).
	ImageURLs
)

// NumberInput is numeric form text. It decodes from a JSON number, a JSON string or null.
type NumberInput string

// UnmarshalJSON implements json.Unmarshaler.
func (n *NumberInput) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*n = NumberInput(str)
		return nil
	}
	*n = NumberInput(s)
	return nil
}

// RawProduct is the candidate field set exactly as the user typed it.
type RawProduct struct {
	Name             string       `json:"name"`
	ShortDescription string       `json:"shortDescription"`
	FullDescription  string       `json:"fullDescription"`
	RegularPrice     NumberInput  `json:"regularPrice"`
	SalePrice        *NumberInput `json:"salePrice"`
	Tags             string       `json:"tags"`
}

// FileMeta describes one selected image file.
type FileMeta struct {
	Name string `json:"name"`
	Size int64  `json:"size" validate:"lte=5242880"`
}

// ImageInput carries the images field in whichever shape the active mode uses.
type ImageInput struct {
	Files []FileMeta
	URLs  []string
}

// Draft is an accepted, type-coerced submission.
type Draft struct {
	Name             string
	ShortDescription string
	FullDescription  string
	RegularPrice     float64
	SalePrice        *float64
	Tags             string
	Images           ImageInput
}

// Violation is a single field-level rule failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Violations is the full list of failures for one submission.
type Violations []Violation

func (v Violations) Error() string {
	parts := make([]string, 0, len(v))
	for _, violation := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", violation.Field, violation.Message))
	}
	return strings.Join(parts, "; ")
}

// Fields groups messages per field for inline display. The first message for a field wins.
func (v Violations) Fields() map[string]string {
	fields := make(map[string]string, len(v))
	for _, violation := range v {
		if _, ok := fields[violation.Field]; !ok {
			fields[violation.Field] = violation.Message
		}
	}
	return fields
}

type productRules struct {
	Name             string `json:"name" validate:"required,min=3"`
	ShortDescription string `json:"shortDescription" validate:"required,min=10,max=120"`
	FullDescription  string `json:"fullDescription" validate:"required,min=10"`
	RegularPrice     string `json:"regularPrice" validate:"positive_number"`
	SalePrice        string `json:"salePrice" validate:"omitempty,decimal_number"`
	Tags             string `json:"tags"`
}

type fileRules struct {
	Images []FileMeta `json:"images" validate:"min=1,max=3,dive"`
}

type urlRules struct {
	Images []string `json:"images" validate:"min=1,max=3,dive,http_url"`
}

// Schema validates product submissions for one image mode.
type Schema struct {
	validate *validator.Validate
	mode     ImageMode
}

// NewSchema creates a Schema for the given image mode.
func NewSchema(mode ImageMode) *Schema {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("positive_number", func(fl validator.FieldLevel) bool {
		f, ok := parseNumber(fl.Field().String())
		return ok && f > 0
	})
	_ = v.RegisterValidation("decimal_number", func(fl validator.FieldLevel) bool {
		_, ok := parseNumber(fl.Field().String())
		return ok
	})
	return &Schema{validate: v, mode: mode}
}

// Mode returns the image mode this schema enforces.
func (s *Schema) Mode() ImageMode {
	return s.mode
}

// Validate checks every rule. It returns either a coerced Draft or the complete list of violations,
// never both.
func (s *Schema) Validate(raw RawProduct, images ImageInput) (*Draft, Violations) {
	rules := productRules{
		Name:             raw.Name,
		ShortDescription: raw.ShortDescription,
		FullDescription:  raw.FullDescription,
		RegularPrice:     string(raw.RegularPrice),
		SalePrice:        salePriceText(raw.SalePrice),
		Tags:             raw.Tags,
	}

	var violations Violations
	violations = append(violations, s.check(rules)...)
	switch s.mode {
	case ImageURLs:
		violations = append(violations, s.check(urlRules{Images: images.URLs})...)
	default:
		violations = append(violations, s.check(fileRules{Images: images.Files})...)
	}
	if len(violations) > 0 {
		return nil, violations
	}

	regular, _ := parseNumber(rules.RegularPrice)
	draft := &Draft{
		Name:             raw.Name,
		ShortDescription: raw.ShortDescription,
		FullDescription:  raw.FullDescription,
		RegularPrice:     regular,
		Tags:             raw.Tags,
		Images:           images,
	}
	if rules.SalePrice != "" {
		sale, _ := parseNumber(rules.SalePrice)
		draft.SalePrice = &sale
	}
	return draft, nil
}

func (s *Schema) check(rules any) Violations {
	err := s.validate.Struct(rules)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return Violations{{Field: "form", Message: err.Error()}}
	}

	var violations Violations
	seen := make(map[string]bool)
	for _, e := range validationErrors {
		field := rootField(e.Namespace())
		msg := message(field, e)
		key := field + "|" + msg
		if seen[key] {
			continue
		}
		seen[key] = true
		violations = append(violations, Violation{Field: field, Message: msg})
	}
	return violations
}

// rootField turns "fileRules.images[1].size" into "images".
func rootField(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	if i := strings.IndexAny(namespace, ".["); i >= 0 {
		namespace = namespace[:i]
	}
	return namespace
}

func message(field string, e validator.FieldError) string {
	if field == "images" {
		switch e.Tag() {
		case "min":
			return "at least one image is required"
		case "max":
			return fmt.Sprintf("at most %d images are allowed", MaxImages)
		case "lte":
			return "each image must be 5 MiB or smaller"
		case "http_url":
			return "must be a valid URL"
		}
	}
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		if field == "shortDescription" {
			return "must be between 10 and 120 characters"
		}
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return "must be between 10 and 120 characters"
	case "positive_number":
		return "must be a positive number"
	case "decimal_number":
		return "must be a number"
	}
	return fmt.Sprintf("failed on the '%s' rule", e.Tag())
}

func salePriceText(n *NumberInput) string {
	if n == nil {
		return ""
	}
	s := strings.TrimSpace(string(*n))
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
