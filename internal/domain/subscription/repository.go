package subscription

import (
	"context"
	"time"

	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// Repository defines the interface for subscription persistence
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)

	// Update persists sub and bumps its version. It fails with a version
	// conflict when the stored row's version no longer matches sub.Version,
	// which callers resolve by re-reading and re-applying.
	Update(ctx context.Context, sub *Subscription) error

	// GetActiveByTenant returns the tenant's subscription in active or
	// trialing state, or a not found error. At most one such subscription
	// exists per tenant.
	GetActiveByTenant(ctx context.Context, tenantID string) (*Subscription, error)

	// ListByTenant returns the tenant's full subscription history, newest
	// first, including terminal states.
	ListByTenant(ctx context.Context, tenantID string, filter types.Filter) ([]*Subscription, error)

	// ListRenewalDue returns usable subscriptions across all tenants whose
	// current period end has passed, for the renewal batch.
	ListRenewalDue(ctx context.Context, before time.Time, filter types.Filter) ([]*Subscription, error)
}
