package repositories

import (
	"context"
	"sync"
	"time"

	"catalog/internal/models"
)

// ChangeListener is called after a mutation of the products collection has been stored.
type ChangeListener func(event models.ProductEvent)

// NotifyingProductRepository wraps a ProductRepository and tells listeners about every successful
// Append and Delete. Writers never talk to readers directly; readers follow this feed.
type NotifyingProductRepository struct {
	ProductRepository

	mu        sync.RWMutex
	listeners []ChangeListener
}

// NewNotifyingProductRepository wraps repo.
func NewNotifyingProductRepository(repo ProductRepository) *NotifyingProductRepository {
	return &NotifyingProductRepository{ProductRepository: repo}
}

// OnChange registers a listener. Listeners run synchronously on the writer's goroutine and must not
// block.
func (r *NotifyingProductRepository) OnChange(listener ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// Append stores the product, then notifies listeners.
func (r *NotifyingProductRepository) Append(ctx context.Context, product *models.Product) error {
	if err := r.ProductRepository.Append(ctx, product); err != nil {
		return err
	}
	r.notify(models.ProductEvent{Type: models.ProductCreated, ProductID: product.ID, OccurredAt: product.CreatedAt})
	return nil
}

// Delete removes the product, then notifies listeners.
func (r *NotifyingProductRepository) Delete(ctx context.Context, id string) error {
	if err := r.ProductRepository.Delete(ctx, id); err != nil {
		return err
	}
	r.notify(models.ProductEvent{Type: models.ProductDeleted, ProductID: id, OccurredAt: time.Now().UTC()})
	return nil
}

func (r *NotifyingProductRepository) notify(event models.ProductEvent) {
	r.mu.RLock()
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}
