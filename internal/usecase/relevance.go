package usecase

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"product-catalog-client/internal/domain"
)

// SortByRelevance orders products in place: valid image first, then products
// with a description, then by price band, then by title in collation order.
// The sort is stable.
func SortByRelevance(products []domain.Product) {
	// A Collator keeps scratch buffers and is not safe for concurrent use.
	titles := collate.New(language.Und)
	slices.SortStableFunc(products, func(a, b domain.Product) int {
		return compareRelevance(titles, a, b)
	})
}

func compareRelevance(titles *collate.Collator, a, b domain.Product) int {
	if ai, bi := a.HasValidImage(), b.HasValidImage(); ai != bi {
		return boolFirst(ai)
	}
	if ad, bd := a.Description != "", b.Description != ""; ad != bd {
		return boolFirst(ad)
	}
	if as, bs := priceBandScore(a.Price), priceBandScore(b.Price); as != bs {
		return bs - as
	}
	return titles.CompareString(a.Title, b.Title)
}

// boolFirst orders the true side before the false side.
func boolFirst(aTrue bool) int {
	if aTrue {
		return -1
	}
	return 1
}

// priceBandScore favours mid-range prices.
func priceBandScore(price float64) int {
	switch {
	case price >= 20 && price <= 100:
		return 3
	case price >= 10 && price <= 200:
		return 2
	default:
		return 1
	}
}
