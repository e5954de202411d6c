package usage

import (
	"time"

	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// Counters holds one typed counter per metered resource. Resource access
// goes through CounterFor/Add so a new resource added to the enum without a
// counter here fails loudly instead of silently metering nothing.
type Counters struct {
	APICalls   int64 `db:"api_calls" json:"api_calls"`
	Workflows  int64 `db:"workflows" json:"workflows"`
	Executions int64 `db:"executions" json:"executions"`
	StorageMB  int64 `db:"storage_mb" json:"storage_mb"`
	Members    int64 `db:"members" json:"members"`
	AICredits  int64 `db:"ai_credits" json:"ai_credits"`
}

// CounterFor returns the counter value for resource.
func (c *Counters) CounterFor(resource types.MeteredResource) (int64, error) {
	switch resource {
	case types.MeteredResourceAPICalls:
		return c.APICalls, nil
	case types.MeteredResourceWorkflows:
		return c.Workflows, nil
	case types.MeteredResourceExecutions:
		return c.Executions, nil
	case types.MeteredResourceStorageMB:
		return c.StorageMB, nil
	case types.MeteredResourceMembers:
		return c.Members, nil
	case types.MeteredResourceAICredits:
		return c.AICredits, nil
	}
	return 0, ierr.NewError("unknown metered resource").
		WithHint("Unknown metered resource").
		WithReportableDetails(map[string]any{
			"resource": resource,
		}).
		Mark(ierr.ErrValidation)
}

// Add increments the counter for resource by amount.
func (c *Counters) Add(resource types.MeteredResource, amount int64) error {
	switch resource {
	case types.MeteredResourceAPICalls:
		c.APICalls += amount
	case types.MeteredResourceWorkflows:
		c.Workflows += amount
	case types.MeteredResourceExecutions:
		c.Executions += amount
	case types.MeteredResourceStorageMB:
		c.StorageMB += amount
	case types.MeteredResourceMembers:
		c.Members += amount
	case types.MeteredResourceAICredits:
		c.AICredits += amount
	default:
		return ierr.NewError("unknown metered resource").
			WithHint("Unknown metered resource").
			WithReportableDetails(map[string]any{
				"resource": resource,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Record is the per-tenant, per-period usage record. Exactly one live
// record exists per (tenant, period label); records for past periods are
// retained read-only as history.
type Record struct {
	ID          string            `db:"id" json:"id"`
	PeriodLabel types.PeriodLabel `db:"period_label" json:"period_label"`

	Counters

	LastUpdatedAt time.Time `db:"last_updated_at" json:"last_updated_at"`

	types.BaseModel
}

// NewRecord returns an empty usage record for the tenant and period.
func NewRecord(tenantID string, label types.PeriodLabel, base types.BaseModel) *Record {
	base.TenantID = tenantID
	return &Record{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
		PeriodLabel:   label,
		LastUpdatedAt: base.UpdatedAt,
		BaseModel:     base,
	}
}
