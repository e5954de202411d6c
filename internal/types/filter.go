package types

const (
	FilterDefaultLimit  = 50
	FilterMaxLimit      = 1000
	FilterDefaultOffset = 0
)

// Filter is a basic pagination filter for list queries
type Filter struct {
	Limit  int `json:"limit" form:"limit"`
	Offset int `json:"offset" form:"offset"`
}

func DefaultFilter() Filter {
	return Filter{
		Limit:  FilterDefaultLimit,
		Offset: FilterDefaultOffset,
	}
}

func (f Filter) GetLimit() int {
	if f.Limit <= 0 {
		return FilterDefaultLimit
	}
	if f.Limit > FilterMaxLimit {
		return FilterMaxLimit
	}
	return f.Limit
}

func (f Filter) GetOffset() int {
	if f.Offset < 0 {
		return FilterDefaultOffset
	}
	return f.Offset
}
