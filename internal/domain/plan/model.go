package plan

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// Plan is a purchasable plan in the catalog. Plans are created once at
// startup and treated as immutable; price changes never retroactively alter
// invoices already issued because invoices snapshot the price at issuance.
type Plan struct {
	ID          string `db:"id" json:"id"`
	LookupKey   string `db:"lookup_key" json:"lookup_key"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`

	// PriceMinor is the billing price in minor currency units (cents).
	PriceMinor int64 `db:"price_minor" json:"price_minor"`

	// Currency is the lowercase 3 letter ISO code, ex "usd"
	Currency string `db:"currency" json:"currency"`

	// Interval is the billing period length, month or year
	Interval types.BillingInterval `db:"interval" json:"interval"`

	// Limits maps each metered resource to its quota for one billing
	// period. types.UnlimitedQuota (-1) means no quota.
	Limits QuotaLimits `db:"limits" json:"limits"`

	types.BaseModel
}

// IsFree reports whether the plan carries no recurring charge.
func (p *Plan) IsFree() bool {
	return p.PriceMinor == 0
}

// LimitFor returns the quota for resource. A resource missing from the
// limits map has a zero quota, not an unlimited one.
func (p *Plan) LimitFor(resource types.MeteredResource) int64 {
	if p.Limits == nil {
		return 0
	}
	limit, ok := p.Limits[resource]
	if !ok {
		return 0
	}
	return limit
}

// QuotaLimits maps metered resources to per-period quotas. Stored as JSONB.
type QuotaLimits map[types.MeteredResource]int64

func (q QuotaLimits) Value() (driver.Value, error) {
	if q == nil {
		return "{}", nil
	}
	return json.Marshal(q)
}

func (q *QuotaLimits) Scan(value interface{}) error {
	if value == nil {
		*q = QuotaLimits{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for quota limits: %T", value)
	}

	return json.Unmarshal(data, q)
}
