package plan

import (
	"context"

	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// Repository defines the interface for plan persistence. The catalog is
// read-only at runtime; Create exists only for startup seeding.
type Repository interface {
	Create(ctx context.Context, plan *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	GetByLookupKey(ctx context.Context, lookupKey string) (*Plan, error)
	List(ctx context.Context, filter types.Filter) ([]*Plan, error)
	Count(ctx context.Context) (int, error)
}
