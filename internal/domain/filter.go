package domain

// SortField names the product field used for ordering. Empty means no sort.
type SortField string

const (
	SortNone     SortField = ""
	SortPrice    SortField = "price"
	SortTitle    SortField = "title"
	SortCategory SortField = "category"
)

// SortOrder is the ordering direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// FilterState describes which products a list view shows and in what order.
// MinPrice <= MaxPrice is expected from the caller; an inverted range simply matches nothing.
type FilterState struct {
	SearchTerm string    `json:"searchTerm"`
	Category   *string   `json:"category"`
	MinPrice   *float64  `json:"minPrice"`
	MaxPrice   *float64  `json:"maxPrice"`
	SortBy     SortField `json:"sortBy"`
	SortOrder  SortOrder `json:"sortOrder"`
}

// DefaultFilters returns the empty filter state.
func DefaultFilters() FilterState {
	return FilterState{SortOrder: SortAsc}
}

// FilterPatch is a partial FilterState. Nil fields are left untouched;
// the Clear* flags reset optional fields back to unset.
type FilterPatch struct {
	SearchTerm    *string
	Category      *string
	MinPrice      *float64
	MaxPrice      *float64
	SortBy        *SortField
	SortOrder     *SortOrder
	ClearCategory bool
	ClearMinPrice bool
	ClearMaxPrice bool
}

// Apply merges the patch into f and returns the result.
func (p FilterPatch) Apply(f FilterState) FilterState {
	if p.SearchTerm != nil {
		f.SearchTerm = *p.SearchTerm
	}
	if p.Category != nil {
		c := *p.Category
		f.Category = &c
	}
	if p.ClearCategory {
		f.Category = nil
	}
	if p.MinPrice != nil {
		v := *p.MinPrice
		f.MinPrice = &v
	}
	if p.ClearMinPrice {
		f.MinPrice = nil
	}
	if p.MaxPrice != nil {
		v := *p.MaxPrice
		f.MaxPrice = &v
	}
	if p.ClearMaxPrice {
		f.MaxPrice = nil
	}
	if p.SortBy != nil {
		f.SortBy = *p.SortBy
	}
	if p.SortOrder != nil {
		f.SortOrder = *p.SortOrder
	}
	return f
}

// ListOptions holds pagination parameters for collection reads.
type ListOptions struct {
	Limit  int
	Offset int
}

const (
	MinPageLimit = 1
	MaxPageLimit = 20
)

// Clamped bounds Limit to [MinPageLimit, MaxPageLimit] and Offset to >= 0.
func (o ListOptions) Clamped() ListOptions {
	o.Limit = max(MinPageLimit, min(o.Limit, MaxPageLimit))
	o.Offset = max(0, o.Offset)
	return o
}

// PriceRange is the min and max of positive prices in a product list.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Page is one slice of a paginated collection.
type Page struct {
	Products   []Product `json:"products"`
	Total      int       `json:"total"`
	HasMore    bool      `json:"hasMore"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}
