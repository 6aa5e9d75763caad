package data

import (
	"math"
	"moviefavs.interimme.net/internal/validator"
	"strings"
)

// Filters holds the pagination and sorting query parameters of a list request.
type Filters struct {
	Page         int
	PageSize     int
	Sort         string   // Column name, prefixed with "-" for descending order.
	SortSafelist []string // Sort values the handler accepts.
}

// Metadata describes the page of results returned by a list request.
type Metadata struct {
	CurrentPage  int `json:"current_page,omitempty"`
	PageSize     int `json:"page_size,omitempty"`
	FirstPage    int `json:"first_page,omitempty"`
	LastPage     int `json:"last_page,omitempty"`
	TotalRecords int `json:"total_records,omitempty"`
}

// CalculateMetadata returns the pagination metadata for totalRecords. An empty result
// set yields the zero Metadata.
func CalculateMetadata(totalRecords, page, pageSize int) Metadata {
	if totalRecords == 0 {
		return Metadata{}
	}
	return Metadata{
		CurrentPage:  page,
		PageSize:     pageSize,
		FirstPage:    1,
		LastPage:     int(math.Ceil(float64(totalRecords) / float64(pageSize))),
		TotalRecords: totalRecords,
	}
}

// sortColumn panics on a value outside the safelist: ValidateFilters must have run first,
// and the column is interpolated into SQL.
func (f Filters) sortColumn() string {
	for _, safeValue := range f.SortSafelist {
		if f.Sort == safeValue {
			return strings.TrimPrefix(f.Sort, "-")
		}
	}
	panic("unsafe sort parameter: " + f.Sort)
}

func (f Filters) sortDirection() string {
	if strings.HasPrefix(f.Sort, "-") {
		return "DESC"
	}
	return "ASC"
}

// ValidateFilters checks the page bounds and the sort value against the safelist.
func ValidateFilters(v *validator.Validator, f Filters) {
	v.Check(f.Page > 0, "page", "must be greater than zero")
	v.Check(f.Page <= 10_000_000, "page", "must be a maximum of 10 million")
	v.Check(f.PageSize > 0, "page_size", "must be greater than zero")
	v.Check(f.PageSize <= 100, "page_size", "must be a maximum of 100")
	v.Check(validator.In(f.Sort, f.SortSafelist...), "sort", "invalid sort value")
}

// Limit is the number of rows in one page.
func (f Filters) Limit() int {
	return f.PageSize
}

// Offset is the number of rows skipped before the current page.
func (f Filters) Offset() int {
	return (f.Page - 1) * f.PageSize
}
