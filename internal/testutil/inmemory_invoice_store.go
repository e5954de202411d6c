package testutil

import (
	"context"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/invoice"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
	}
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv == nil {
		return ierr.NewError("invoice cannot be nil").
			WithHint("Invoice cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if inv.IdempotencyKey != nil {
		if _, err := s.GetByIdempotencyKey(ctx, *inv.IdempotencyKey); err == nil {
			return ierr.NewError("invoice already issued under idempotency key").
				WithHint("An invoice already exists for this idempotency key").
				Mark(ierr.ErrAlreadyExists)
		}
	}
	return s.InMemoryStore.Create(ctx, inv.ID, inv)
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *inv
	return &copied, nil
}

func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	copied := *inv
	return s.InMemoryStore.Update(ctx, inv.ID, &copied)
}

func (s *InMemoryInvoiceStore) GetByIdempotencyKey(ctx context.Context, key string) (*invoice.Invoice, error) {
	invoices, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, inv *invoice.Invoice, _ interface{}) bool {
		return inv.IdempotencyKey != nil && *inv.IdempotencyKey == key
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, ierr.NewError("invoice not found").
			WithHint("No invoice exists for this idempotency key").
			Mark(ierr.ErrNotFound)
	}
	copied := *invoices[0]
	return &copied, nil
}

func (s *InMemoryInvoiceStore) ListByTenant(ctx context.Context, tenantID string, filter types.Filter) ([]*invoice.Invoice, error) {
	return s.InMemoryStore.List(ctx, filter, func(_ context.Context, inv *invoice.Invoice, _ interface{}) bool {
		return inv.TenantID == tenantID
	}, func(i, j *invoice.Invoice) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
}
