package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/usage"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// InMemoryUsageStore implements usage.Repository. IncrementWithinLimit
// holds a single mutex across the read-check-write, matching the atomicity
// the postgres layer gets from its conditional upsert.
type InMemoryUsageStore struct {
	*InMemoryStore[*usage.Record]
	mu sync.Mutex
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		InMemoryStore: NewInMemoryStore[*usage.Record](),
	}
}

func (s *InMemoryUsageStore) Create(ctx context.Context, rec *usage.Record) error {
	if rec == nil {
		return ierr.NewError("usage record cannot be nil").
			WithHint("Usage record cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, rec.ID, rec)
}

func (s *InMemoryUsageStore) Update(ctx context.Context, rec *usage.Record) error {
	copied := *rec
	return s.InMemoryStore.Update(ctx, rec.ID, &copied)
}

func (s *InMemoryUsageStore) GetByTenantAndPeriod(ctx context.Context, tenantID string, label types.PeriodLabel) (*usage.Record, error) {
	records, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, rec *usage.Record, _ interface{}) bool {
		return rec.TenantID == tenantID && rec.PeriodLabel == label
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ierr.NewError("usage record not found").
			WithHint("No usage recorded for this period").
			WithReportableDetails(map[string]any{
				"tenant_id": tenantID,
				"period":    label,
			}).
			Mark(ierr.ErrNotFound)
	}
	copied := *records[0]
	return &copied, nil
}

func (s *InMemoryUsageStore) IncrementWithinLimit(ctx context.Context, tenantID string, label types.PeriodLabel, resource types.MeteredResource, amount int64, limit int64) (bool, error) {
	if amount < 0 {
		return false, ierr.NewError("usage amount cannot be negative").
			WithHint("Usage amounts must be non negative").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.GetByTenantAndPeriod(ctx, tenantID, label)
	if err != nil {
		if !ierr.IsNotFound(err) {
			return false, err
		}
		base := types.BaseModel{
			TenantID:  tenantID,
			Status:    types.StatusPublished,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		rec = usage.NewRecord(tenantID, label, base)
		if err := s.InMemoryStore.Create(ctx, rec.ID, rec); err != nil {
			return false, err
		}
	}

	current, err := rec.CounterFor(resource)
	if err != nil {
		return false, err
	}
	if limit != types.UnlimitedQuota && current+amount > limit {
		return false, nil
	}

	if err := rec.Add(resource, amount); err != nil {
		return false, err
	}
	rec.LastUpdatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.LastUpdatedAt

	copied := *rec
	return true, s.InMemoryStore.Update(ctx, rec.ID, &copied)
}

func (s *InMemoryUsageStore) ListByTenant(ctx context.Context, tenantID string, filter types.Filter) ([]*usage.Record, error) {
	return s.InMemoryStore.List(ctx, filter, func(_ context.Context, rec *usage.Record, _ interface{}) bool {
		return rec.TenantID == tenantID
	}, func(i, j *usage.Record) bool {
		return i.PeriodLabel > j.PeriodLabel
	})
}
