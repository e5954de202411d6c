package types

import (
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
)

// BillingInterval is the length of a billing period, ex MONTH or YEAR
type BillingInterval string

const (
	BillingIntervalMonth BillingInterval = "month"
	BillingIntervalYear  BillingInterval = "year"
)

func (i BillingInterval) String() string {
	return string(i)
}

func (i BillingInterval) Validate() error {
	allowed := []BillingInterval{
		BillingIntervalMonth,
		BillingIntervalYear,
	}
	for _, interval := range allowed {
		if i == interval {
			return nil
		}
	}
	return ierr.NewError("invalid billing interval").
		WithHint("Billing interval must be month or year").
		WithReportableDetails(map[string]any{
			"interval": i,
			"allowed":  allowed,
		}).
		Mark(ierr.ErrValidation)
}

// MeteredResource is the closed set of resources counted against plan quotas.
// Every metered action on the platform maps to exactly one of these.
type MeteredResource string

const (
	MeteredResourceAPICalls   MeteredResource = "api_calls"
	MeteredResourceWorkflows  MeteredResource = "workflows"
	MeteredResourceExecutions MeteredResource = "executions"
	MeteredResourceStorageMB  MeteredResource = "storage_mb"
	MeteredResourceMembers    MeteredResource = "members"
	MeteredResourceAICredits  MeteredResource = "ai_credits"
)

// MeteredResources lists every known resource. Keep in sync with the
// Counters struct in the usage domain.
func MeteredResources() []MeteredResource {
	return []MeteredResource{
		MeteredResourceAPICalls,
		MeteredResourceWorkflows,
		MeteredResourceExecutions,
		MeteredResourceStorageMB,
		MeteredResourceMembers,
		MeteredResourceAICredits,
	}
}

func (r MeteredResource) String() string {
	return string(r)
}

func (r MeteredResource) Validate() error {
	for _, resource := range MeteredResources() {
		if r == resource {
			return nil
		}
	}
	return ierr.NewError("invalid metered resource").
		WithHint("Unknown metered resource").
		WithReportableDetails(map[string]any{
			"resource": r,
			"allowed":  MeteredResources(),
		}).
		Mark(ierr.ErrValidation)
}

// UnlimitedQuota is the sentinel limit value meaning "no quota".
const UnlimitedQuota int64 = -1
