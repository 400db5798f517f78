// Package liveview keeps any number of subscribers in sync with the ordered product list. Every
// delivery is a full replacement snapshot.
package liveview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"catalog/internal/models"

	"go.uber.org/zap"
)

// ErrHubClosed is returned by Open after Close.
var ErrHubClosed = errors.New("live view hub is closed")

// Lister is the read side of the product store.
type Lister interface {
	ListByCreatedDesc(ctx context.Context) ([]models.Product, error)
}

// Hub fans snapshots out to open views.
type Hub struct {
	lister Lister
	logger *zap.Logger

	// refreshMu serializes list-and-deliver so that views never see an older snapshot after a newer one.
	refreshMu sync.Mutex

	mu     sync.Mutex
	views  map[uint64]*View
	nextID uint64
	closed bool

	trigger chan struct{}
}

// NewHub creates a Hub reading from lister.
func NewHub(lister Lister, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		lister:  lister,
		logger:  logger,
		views:   make(map[uint64]*View),
		trigger: make(chan struct{}, 1),
	}
}

// View is one subscriber's handle. Snapshots are shared between views and must not be modified.
type View struct {
	id   uint64
	hub  *Hub
	ch   chan []models.Product
	done chan struct{}
	once sync.Once
}

// Snapshots delivers the current list on open and again after every change. Only the latest
// undelivered snapshot is kept. The channel is closed when the view is torn down.
func (v *View) Snapshots() <-chan []models.Product {
	return v.ch
}

// Done is closed when the view is torn down.
func (v *View) Done() <-chan struct{} {
	return v.done
}

// Close tears the subscription down. It is safe to call more than once.
func (v *View) Close() {
	v.once.Do(func() {
		v.hub.remove(v)
	})
}

// Open subscribes a new view and delivers the current snapshot to it. The view lives until the
// returned cancel func is called, ctx is done, or the hub is closed.
func (h *Hub) Open(ctx context.Context) (*View, context.CancelFunc, error) {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	snapshot, err := h.lister.ListByCreatedDesc(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load initial snapshot: %w", err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, ErrHubClosed
	}
	h.nextID++
	v := &View{
		id:   h.nextID,
		hub:  h,
		ch:   make(chan []models.Product, 1),
		done: make(chan struct{}),
	}
	h.views[v.id] = v
	deliver(v, snapshot)
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			v.Close()
		case <-v.done:
		}
	}()

	h.logger.Debug("Live view opened", zap.Uint64("view", v.id), zap.Int("products", len(snapshot)))
	return v, v.Close, nil
}

// Notify schedules a refresh. Bursts of notifications collapse into one refresh.
func (h *Hub) Notify() {
	select {
	case h.trigger <- struct{}{}:
	default:
	}
}

// OnChange adapts the hub to a store change listener.
func (h *Hub) OnChange(event models.ProductEvent) {
	h.logger.Debug("Product change observed",
		zap.String("type", string(event.Type)),
		zap.String("product_id", event.ProductID))
	h.Notify()
}

// Refresh re-reads the list and delivers it to every open view.
func (h *Hub) Refresh(ctx context.Context) error {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	snapshot, err := h.lister.ListByCreatedDesc(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh live views: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range h.views {
		deliver(v, snapshot)
	}
	return nil
}

// Run refreshes the views whenever a change is notified, until ctx is done. Open views are closed
// when Run returns.
func (h *Hub) Run(ctx context.Context) error {
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.trigger:
			if err := h.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				h.logger.Error("Live view refresh failed", zap.Error(err))
			}
		}
	}
}

// Close tears down every open view and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	views := make([]*View, 0, len(h.views))
	for _, v := range h.views {
		views = append(views, v)
	}
	h.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
}

// Len reports the number of open views.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

func (h *Hub) remove(v *View) {
	h.mu.Lock()
	delete(h.views, v.id)
	close(v.ch)
	h.mu.Unlock()
	close(v.done)

	h.logger.Debug("Live view closed", zap.Uint64("view", v.id))
}

// deliver replaces any undelivered snapshot with the new one. Callers hold h.mu.
func deliver(v *View, snapshot []models.Product) {
	select {
	case v.ch <- snapshot:
		return
	default:
	}
	select {
	case <-v.ch:
	default:
	}
	v.ch <- snapshot
}
