package acquisition

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"catalog/internal/validation"
)

// Widget accepts files the upload widget already stored. It has no byte-level progress: it reports
// 0 before and 100 after resolution.
type Widget struct {
	publicBase string
}

// NewWidget creates a Widget that resolves bare keys against publicBase.
func NewWidget(publicBase string) *Widget {
	return &Widget{publicBase: strings.TrimRight(publicBase, "/")}
}

// Variant implements Acquirer.
func (w *Widget) Variant() Variant {
	return VariantWidget
}

// Resolve maps one descriptor to a usable URL.
func (w *Widget) Resolve(d Descriptor) (string, error) {
	if u := strings.TrimSpace(d.URL); u != "" {
		return u, nil
	}
	key := strings.TrimLeft(strings.TrimSpace(d.Key), "/")
	if key == "" {
		return "", fmt.Errorf("upload descriptor has neither url nor key")
	}
	return w.publicBase + "/" + key, nil
}

// Inspect implements Acquirer. Descriptors that cannot be resolved are passed on as empty strings so
// the schema rejects them.
func (w *Widget) Inspect(images Images) validation.ImageInput {
	urls := make([]string, 0, len(images.Uploads))
	for _, d := range images.Uploads {
		u, _ := w.Resolve(d)
		urls = append(urls, u)
	}
	return validation.ImageInput{URLs: urls}
}

// Acquire implements Acquirer.
func (w *Widget) Acquire(ctx context.Context, _ string, images Images, onProgress ProgressFunc) ([]string, error) {
	emit(onProgress, 0)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collector := NewCollector(validation.MaxImages)
	for _, d := range images.Uploads {
		u, err := w.Resolve(d)
		if err != nil {
			return nil, err
		}
		if _, full := collector.Add(u); full {
			break
		}
	}

	emit(onProgress, 100)
	return collector.URLs(), nil
}

// Collector accumulates completed upload URLs up to a fixed bound. Once the bound is reached the
// upload surface should be hidden.
type Collector struct {
	mu    sync.Mutex
	limit int
	urls  []string
}

// NewCollector creates a Collector holding at most limit URLs.
func NewCollector(limit int) *Collector {
	return &Collector{limit: limit}
}

// Add appends urls in order until the bound is reached. It returns the URLs actually accepted and
// whether the collector is now full.
func (c *Collector) Add(urls ...string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var added []string
	for _, u := range urls {
		if len(c.urls) >= c.limit {
			break
		}
		c.urls = append(c.urls, u)
		added = append(added, u)
	}
	return added, len(c.urls) >= c.limit
}

// URLs returns a copy of the accumulated URLs.
func (c *Collector) URLs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.urls...)
}

// Full reports whether the bound has been reached.
func (c *Collector) Full() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.urls) >= c.limit
}

// Remaining reports how many more URLs fit.
func (c *Collector) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit - len(c.urls)
}
