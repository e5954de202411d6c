package service

import (
	"context"

	"github.com/samber/lo"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/plan"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/usage"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// UsageService meters per-tenant resource consumption against plan quotas.
// Counters live in monthly records keyed by period label and roll over
// lazily: the first touch in a new month starts a fresh record, old records
// stay behind as history.
type UsageService interface {
	// CheckLimit answers whether amount more units fit in the remaining
	// quota. It never mutates anything; pair with Record only when a stale
	// answer is acceptable, otherwise use CheckAndRecord.
	CheckLimit(ctx context.Context, resource types.MeteredResource, amount int64) (*dto.CheckLimitResponse, error)

	// Record adds amount to the resource counter without enforcing the
	// quota. Negative amounts are rejected.
	Record(ctx context.Context, req dto.RecordUsageRequest) (*dto.UsageRecordResponse, error)

	// CheckAndRecord atomically checks the quota and records the usage.
	// Two concurrent calls can never jointly exceed the limit: one of them
	// loses and gets a quota exceeded error.
	CheckAndRecord(ctx context.Context, req dto.RecordUsageRequest) (*dto.UsageRecordResponse, error)

	// GetCurrentUsage returns the tenant's record for the current period,
	// an all-zero record when nothing has been metered yet.
	GetCurrentUsage(ctx context.Context) (*dto.UsageRecordResponse, error)

	// ListUsage returns the tenant's usage history, newest period first.
	ListUsage(ctx context.Context, filter types.Filter) (*dto.ListUsageResponse, error)
}

type usageService struct {
	ServiceParams
}

func NewUsageService(params ServiceParams) UsageService {
	return &usageService{ServiceParams: params}
}

func (s *usageService) CheckLimit(ctx context.Context, resource types.MeteredResource, amount int64) (*dto.CheckLimitResponse, error) {
	if err := resource.Validate(); err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, negativeAmountError(amount)
	}

	tenantID := types.GetTenantID(ctx)
	p, err := s.activePlan(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	limit := p.LimitFor(resource)

	used := int64(0)
	rec, err := s.UsageRepo.GetByTenantAndPeriod(ctx, tenantID, types.CurrentPeriodLabel())
	if err == nil {
		used, err = rec.CounterFor(resource)
		if err != nil {
			return nil, err
		}
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	allowed := limit == types.UnlimitedQuota || used+amount <= limit
	return &dto.CheckLimitResponse{
		Allowed: allowed,
		Limit:   limit,
		Used:    used,
	}, nil
}

func (s *usageService) Record(ctx context.Context, req dto.RecordUsageRequest) (*dto.UsageRecordResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tenantID := types.GetTenantID(ctx)
	if _, err := s.activePlan(ctx, tenantID); err != nil {
		return nil, err
	}

	// No quota bound on plain Record, only the atomic increment path.
	rec, err := s.increment(ctx, tenantID, req.Resource, req.Amount, types.UnlimitedQuota)
	if err != nil {
		return nil, err
	}
	return &dto.UsageRecordResponse{Record: rec}, nil
}

func (s *usageService) CheckAndRecord(ctx context.Context, req dto.RecordUsageRequest) (*dto.UsageRecordResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tenantID := types.GetTenantID(ctx)
	p, err := s.activePlan(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	limit := p.LimitFor(req.Resource)

	rec, err := s.increment(ctx, tenantID, req.Resource, req.Amount, limit)
	if err != nil {
		return nil, err
	}
	return &dto.UsageRecordResponse{Record: rec}, nil
}

func (s *usageService) GetCurrentUsage(ctx context.Context) (*dto.UsageRecordResponse, error) {
	tenantID := types.GetTenantID(ctx)
	label := types.CurrentPeriodLabel()

	rec, err := s.UsageRepo.GetByTenantAndPeriod(ctx, tenantID, label)
	if err != nil {
		if ierr.IsNotFound(err) {
			return &dto.UsageRecordResponse{Record: usage.NewRecord(tenantID, label, types.GetDefaultBaseModel(ctx))}, nil
		}
		return nil, err
	}
	return &dto.UsageRecordResponse{Record: rec}, nil
}

func (s *usageService) ListUsage(ctx context.Context, filter types.Filter) (*dto.ListUsageResponse, error) {
	records, err := s.UsageRepo.ListByTenant(ctx, types.GetTenantID(ctx), filter)
	if err != nil {
		return nil, err
	}
	return &dto.ListUsageResponse{
		Items: lo.Map(records, func(rec *usage.Record, _ int) *dto.UsageRecordResponse {
			return &dto.UsageRecordResponse{Record: rec}
		}),
		Total: len(records),
	}, nil
}

// increment applies the conditional counter update, lazily creating the
// record for the current period on first touch. The per-(tenant, resource)
// lock serializes record creation; the quota bound itself is enforced by
// the repository's conditional update so it also holds across processes.
func (s *usageService) increment(ctx context.Context, tenantID string, resource types.MeteredResource, amount, limit int64) (*usage.Record, error) {
	label := types.CurrentPeriodLabel()

	key := usageKey(tenantID, resource)
	s.Locks.Lock(key)
	defer s.Locks.Unlock(key)

	applied, err := s.UsageRepo.IncrementWithinLimit(ctx, tenantID, label, resource, amount, limit)
	if err != nil {
		return nil, err
	}
	if !applied {
		used := int64(0)
		if rec, err := s.UsageRepo.GetByTenantAndPeriod(ctx, tenantID, label); err == nil {
			used, _ = rec.CounterFor(resource)
		}
		return nil, ierr.NewError("usage quota exceeded").
			WithHint("The request would exceed the plan's quota for this resource").
			WithReportableDetails(map[string]any{
				"resource": resource,
				"amount":   amount,
				"used":     used,
				"limit":    limit,
			}).
			Mark(ierr.ErrQuotaExceeded)
	}

	rec, err := s.UsageRepo.GetByTenantAndPeriod(ctx, tenantID, label)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// activePlan resolves the plan backing the tenant's usable subscription.
// Tenants without one cannot meter usage.
func (s *usageService) activePlan(ctx context.Context, tenantID string) (*plan.Plan, error) {
	sub, err := s.SubRepo.GetActiveByTenant(ctx, tenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.NewError("no usable subscription").
				WithHint("An active or trialing subscription is required to meter usage").
				Mark(ierr.ErrInvalidOperation)
		}
		return nil, err
	}
	return s.PlanRepo.Get(ctx, sub.PlanID)
}

func usageKey(tenantID string, resource types.MeteredResource) string {
	return "usage:" + tenantID + ":" + string(resource)
}

func negativeAmountError(amount int64) error {
	return ierr.NewError("usage amount cannot be negative").
		WithHint("Usage amounts must be non negative").
		WithReportableDetails(map[string]any{
			"amount": amount,
		}).
		Mark(ierr.ErrValidation)
}
