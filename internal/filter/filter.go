// Package filter applies search, category and price filters and sort order to
// product lists.
package filter

import (
	"cmp"
	"slices"
	"strings"

	"product-catalog-client/internal/domain"
)

// Apply returns the products matching f in the order f asks for. The input
// slice is never modified. An inverted price range matches nothing.
func Apply(products []domain.Product, f domain.FilterState) []domain.Product {
	term := strings.ToLower(strings.TrimSpace(f.SearchTerm))
	var category string
	if f.Category != nil {
		category = domain.NormalizeCategory(*f.Category)
	}

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if term != "" && !matchesTerm(p, term) {
			continue
		}
		if category != "" && domain.NormalizeCategory(p.Category) != category {
			continue
		}
		if f.MinPrice != nil && p.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && p.Price > *f.MaxPrice {
			continue
		}
		out = append(out, p)
	}

	if cmpFn := comparator(f.SortBy); cmpFn != nil {
		if f.SortOrder == domain.SortDesc {
			asc := cmpFn
			cmpFn = func(a, b domain.Product) int { return asc(b, a) }
		}
		slices.SortStableFunc(out, cmpFn)
	}
	return out
}

// Paginate returns one window of products and the page metadata.
func Paginate(products []domain.Product, opts domain.ListOptions) domain.Page {
	opts = opts.Clamped()
	total := len(products)
	start := min(opts.Offset, total)
	end := min(start+opts.Limit, total)
	return domain.Page{
		Products:   slices.Clone(products[start:end]),
		Total:      total,
		HasMore:    end < total,
		Page:       opts.Offset/opts.Limit + 1,
		TotalPages: (total + opts.Limit - 1) / opts.Limit,
	}
}

func matchesTerm(p domain.Product, term string) bool {
	return strings.Contains(strings.ToLower(p.Title), term) ||
		strings.Contains(strings.ToLower(p.Description), term) ||
		strings.Contains(strings.ToLower(p.Category), term)
}

func comparator(field domain.SortField) func(a, b domain.Product) int {
	switch field {
	case domain.SortPrice:
		return func(a, b domain.Product) int { return cmp.Compare(a.Price, b.Price) }
	case domain.SortTitle:
		return func(a, b domain.Product) int { return strings.Compare(a.Title, b.Title) }
	case domain.SortCategory:
		return func(a, b domain.Product) int { return strings.Compare(a.Category, b.Category) }
	default:
		return nil
	}
}
