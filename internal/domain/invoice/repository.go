package invoice

import (
	"context"

	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// Repository defines the interface for invoice persistence
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error

	// GetByIdempotencyKey returns the invoice issued under key, if any.
	// The renewal job uses this to avoid issuing a second invoice for a
	// period it already settled before a crash.
	GetByIdempotencyKey(ctx context.Context, key string) (*Invoice, error)

	// ListByTenant returns the tenant's invoices, newest first.
	ListByTenant(ctx context.Context, tenantID string, filter types.Filter) ([]*Invoice, error)
}
