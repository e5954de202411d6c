package dto

import (
	"context"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/plan"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
	"github.com/stack21app-sketch/stack21-sub003/internal/validator"
)

// CreatePlanRequest doubles as the YAML shape of catalog seed entries.
type CreatePlanRequest struct {
	LookupKey   string                `json:"lookup_key" yaml:"lookup_key" validate:"required"`
	Name        string                `json:"name" yaml:"name" validate:"required"`
	Description string                `json:"description" yaml:"description"`
	PriceMinor  int64                 `json:"price_minor" yaml:"price_minor" validate:"gte=0"`
	Currency    string                `json:"currency" yaml:"currency" validate:"required,len=3"`
	Interval    types.BillingInterval `json:"interval" yaml:"interval" validate:"required"`
	Limits      map[string]int64      `json:"limits" yaml:"limits"`
}

func (r *CreatePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Interval.Validate(); err != nil {
		return err
	}
	for name, limit := range r.Limits {
		resource := types.MeteredResource(name)
		if err := resource.Validate(); err != nil {
			return err
		}
		if limit < types.UnlimitedQuota {
			return ierr.NewError("invalid quota limit").
				WithHint("Quota limits must be non negative or -1 for unlimited").
				WithReportableDetails(map[string]any{
					"resource": name,
					"limit":    limit,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

func (r *CreatePlanRequest) ToPlan(ctx context.Context) *plan.Plan {
	limits := make(plan.QuotaLimits, len(r.Limits))
	for name, limit := range r.Limits {
		limits[types.MeteredResource(name)] = limit
	}
	return &plan.Plan{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN),
		LookupKey:   r.LookupKey,
		Name:        r.Name,
		Description: r.Description,
		PriceMinor:  r.PriceMinor,
		Currency:    r.Currency,
		Interval:    r.Interval,
		Limits:      limits,
		BaseModel:   types.GetDefaultBaseModel(ctx),
	}
}

type PlanResponse struct {
	*plan.Plan
}

type ListPlansResponse struct {
	Items []*PlanResponse `json:"items"`
	Total int             `json:"total"`
}
