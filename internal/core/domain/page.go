package domain

import "strings"

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// PageQuery selects one page of a listing.
type PageQuery struct {
	Page    int
	Limit   int
	OrderBy string
	Order   string
}

// Offset is the number of rows skipped before the page starts.
func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Ascending reports whether the page is sorted in ascending order.
func (q PageQuery) Ascending() bool { return q.Order == "asc" }

// Normalize validates q against the allowed sort fields and fills defaults.
func (q PageQuery) Normalize(defaultOrderBy string, allowedOrderBy ...string) (PageQuery, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return q, E(KindValidation, "page must be greater than 0")
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit < 1 || q.Limit > MaxPageLimit {
		return q, E(KindValidation, "limit must be between 1 and 100")
	}

	q.Order = strings.ToLower(q.Order)
	switch q.Order {
	case "":
		q.Order = "desc"
	case "asc", "desc":
	default:
		return q, E(KindValidation, "order must be one of: asc, desc")
	}

	if q.OrderBy == "" {
		q.OrderBy = defaultOrderBy
		return q, nil
	}
	if q.OrderBy == defaultOrderBy {
		return q, nil
	}
	for _, f := range allowedOrderBy {
		if q.OrderBy == f {
			return q, nil
		}
	}
	return q, E(KindValidation, "orderBy must be one of: "+strings.Join(append([]string{defaultOrderBy}, allowedOrderBy...), ", "))
}

// Pagination describes where a page sits in the full listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// NewPage builds a page from its rows and the total row count.
func NewPage[T any](data []T, q PageQuery, total int) Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := 0
	if q.Limit > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}
	return Page[T]{
		Data:       data,
		Pagination: Pagination{Page: q.Page, Limit: q.Limit, Total: total, Pages: pages},
	}
}
