package payment

import (
	"context"

	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// Repository defines the interface for payment method persistence
type Repository interface {
	Create(ctx context.Context, pm *PaymentMethod) error
	Get(ctx context.Context, id string) (*PaymentMethod, error)
	Update(ctx context.Context, pm *PaymentMethod) error
	ListByTenant(ctx context.Context, tenantID string, filter types.Filter) ([]*PaymentMethod, error)

	// GetDefaultByTenant returns the tenant's default payment method, or a
	// not found error when the tenant has none.
	GetDefaultByTenant(ctx context.Context, tenantID string) (*PaymentMethod, error)

	// ClearDefault unsets the default flag on every method of the tenant,
	// used before promoting another method to default.
	ClearDefault(ctx context.Context, tenantID string) error
}
