package driven

import (
	"context"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// StoreRegistry lists the storefronts whose performance is cached (PostgreSQL)
type StoreRegistry interface {
	// Get retrieves a store by ID
	Get(ctx context.Context, id string) (*domain.Store, error)

	// List retrieves all registered stores
	List(ctx context.Context) ([]*domain.Store, error)

	// Save creates or updates a store
	Save(ctx context.Context, store *domain.Store) error

	// Delete removes a store
	Delete(ctx context.Context, id string) error
}
