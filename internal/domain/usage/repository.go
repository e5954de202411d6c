package usage

import (
	"context"

	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// Repository defines the interface for usage record persistence.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error

	// GetByTenantAndPeriod returns the tenant's record for the given period
	// label, or a not found error.
	GetByTenantAndPeriod(ctx context.Context, tenantID string, label types.PeriodLabel) (*Record, error)

	// IncrementWithinLimit atomically adds amount to the resource counter of
	// the tenant's record for the period iff the result stays within limit
	// (limit types.UnlimitedQuota skips the bound). It reports whether the
	// increment was applied. This is the conditional update backing
	// CheckAndRecord; implementations must not allow two concurrent callers
	// to both pass a check the combined total would violate.
	IncrementWithinLimit(ctx context.Context, tenantID string, label types.PeriodLabel, resource types.MeteredResource, amount int64, limit int64) (bool, error)

	// ListByTenant returns the tenant's usage history, newest period first.
	ListByTenant(ctx context.Context, tenantID string, filter types.Filter) ([]*Record, error)
}
