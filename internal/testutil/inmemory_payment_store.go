package testutil

import (
	"context"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// InMemoryPaymentMethodStore implements payment.Repository
type InMemoryPaymentMethodStore struct {
	*InMemoryStore[*payment.PaymentMethod]
}

func NewInMemoryPaymentMethodStore() *InMemoryPaymentMethodStore {
	return &InMemoryPaymentMethodStore{
		InMemoryStore: NewInMemoryStore[*payment.PaymentMethod](),
	}
}

func (s *InMemoryPaymentMethodStore) Create(ctx context.Context, pm *payment.PaymentMethod) error {
	if pm == nil {
		return ierr.NewError("payment method cannot be nil").
			WithHint("Payment method cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, pm.ID, pm)
}

func (s *InMemoryPaymentMethodStore) Get(ctx context.Context, id string) (*payment.PaymentMethod, error) {
	pm, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *pm
	return &copied, nil
}

func (s *InMemoryPaymentMethodStore) Update(ctx context.Context, pm *payment.PaymentMethod) error {
	copied := *pm
	return s.InMemoryStore.Update(ctx, pm.ID, &copied)
}

func (s *InMemoryPaymentMethodStore) ListByTenant(ctx context.Context, tenantID string, filter types.Filter) ([]*payment.PaymentMethod, error) {
	return s.InMemoryStore.List(ctx, filter, func(_ context.Context, pm *payment.PaymentMethod, _ interface{}) bool {
		return pm.TenantID == tenantID
	}, func(i, j *payment.PaymentMethod) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
}

func (s *InMemoryPaymentMethodStore) GetDefaultByTenant(ctx context.Context, tenantID string) (*payment.PaymentMethod, error) {
	methods, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, pm *payment.PaymentMethod, _ interface{}) bool {
		return pm.TenantID == tenantID && pm.IsDefault
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		return nil, ierr.NewError("no default payment method").
			WithHint("Tenant has no default payment method").
			Mark(ierr.ErrNotFound)
	}
	copied := *methods[0]
	return &copied, nil
}

func (s *InMemoryPaymentMethodStore) ClearDefault(ctx context.Context, tenantID string) error {
	methods, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, pm *payment.PaymentMethod, _ interface{}) bool {
		return pm.TenantID == tenantID && pm.IsDefault
	}, nil)
	if err != nil {
		return err
	}
	for _, pm := range methods {
		copied := *pm
		copied.IsDefault = false
		if err := s.InMemoryStore.Update(ctx, pm.ID, &copied); err != nil {
			return err
		}
	}
	return nil
}
