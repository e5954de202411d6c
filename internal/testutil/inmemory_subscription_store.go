package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/subscription"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository with the
// same uniqueness and optimistic versioning behavior as the postgres layer.
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
	mu sync.Mutex
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			WithHint("Subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.SubscriptionStatus.IsUsable() {
		if _, err := s.GetActiveByTenant(ctx, sub.TenantID); err == nil {
			return ierr.NewError("tenant already has a usable subscription").
				WithHint("Tenant already has a usable subscription").
				Mark(ierr.ErrAlreadyExists)
		}
	}

	return s.InMemoryStore.Create(ctx, sub.ID, sub)
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *sub
	return &copied, nil
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.InMemoryStore.Get(ctx, sub.ID)
	if err != nil {
		return err
	}
	if stored.Version != sub.Version {
		return ierr.NewError("subscription was modified concurrently").
			WithHint("The subscription changed underneath this update, retry").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
			}).
			Mark(ierr.ErrVersionConflict)
	}

	sub.Version++
	sub.UpdatedAt = time.Now().UTC()
	copied := *sub
	return s.InMemoryStore.Update(ctx, sub.ID, &copied)
}

func (s *InMemorySubscriptionStore) GetActiveByTenant(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	subs, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, sub *subscription.Subscription, _ interface{}) bool {
		return sub.TenantID == tenantID && sub.SubscriptionStatus.IsUsable()
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ierr.NewError("no usable subscription").
			WithHint("Tenant has no active or trialing subscription").
			Mark(ierr.ErrNotFound)
	}
	copied := *subs[0]
	return &copied, nil
}

func (s *InMemorySubscriptionStore) ListByTenant(ctx context.Context, tenantID string, filter types.Filter) ([]*subscription.Subscription, error) {
	return s.InMemoryStore.List(ctx, filter, func(_ context.Context, sub *subscription.Subscription, _ interface{}) bool {
		return sub.TenantID == tenantID
	}, func(i, j *subscription.Subscription) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
}

func (s *InMemorySubscriptionStore) ListRenewalDue(ctx context.Context, before time.Time, filter types.Filter) ([]*subscription.Subscription, error) {
	return s.InMemoryStore.List(ctx, filter, func(_ context.Context, sub *subscription.Subscription, _ interface{}) bool {
		return sub.SubscriptionStatus.IsUsable() && !before.Before(sub.CurrentPeriodEnd)
	}, func(i, j *subscription.Subscription) bool {
		return i.CurrentPeriodEnd.Before(j.CurrentPeriodEnd)
	})
}
