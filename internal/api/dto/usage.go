package dto

import (
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/usage"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
	"github.com/stack21app-sketch/stack21-sub003/internal/validator"
)

type RecordUsageRequest struct {
	Resource types.MeteredResource `json:"resource" validate:"required"`
	Amount   int64                 `json:"amount" validate:"required"`
}

func (r *RecordUsageRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Resource.Validate(); err != nil {
		return err
	}
	if r.Amount <= 0 {
		return ierr.NewError("usage amount must be positive").
			WithHint("Usage amounts must be greater than zero").
			WithReportableDetails(map[string]any{
				"amount": r.Amount,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CheckLimitResponse answers whether amount more units of a resource fit
// within the tenant's remaining quota for the current period.
type CheckLimitResponse struct {
	Allowed bool `json:"allowed"`

	// Limit is the plan quota, types.UnlimitedQuota for no limit.
	Limit int64 `json:"limit"`

	// Used is the counter value at the time of the check.
	Used int64 `json:"used"`
}

type UsageRecordResponse struct {
	*usage.Record
}

type ListUsageResponse struct {
	Items []*UsageRecordResponse `json:"items"`
	Total int                    `json:"total"`
}
