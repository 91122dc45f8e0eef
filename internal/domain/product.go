package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is assigned to products whose payload carries no currency.
const DefaultCurrency = "USD"

// ExpensiveThreshold marks the price above which a product counts as expensive.
const ExpensiveThreshold = 100.0

// DefaultCategories is the allowed category set of the upstream catalog API.
var DefaultCategories = []string{"electronics", "jewelery", "men's clothing", "women's clothing"}

// Rating is the upstream review summary. It is carried through untouched.
type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// Product represents a catalog product as seen by the client.
// The json tags describe the persisted form kept in the fallback store.
type Product struct {
	ID          int64   `json:"id" validate:"gt=0"`
	Title       string  `json:"title" validate:"product_title"`
	Price       float64 `json:"price" validate:"finite,gte=0"`
	Currency    string  `json:"currency,omitempty" validate:"currency"`
	Category    string  `json:"category" validate:"catalog_category"`
	Image       string  `json:"image" validate:"required,url"`
	Description string  `json:"description,omitempty"`
	Rating      *Rating `json:"rating,omitempty"`
}

// ProductInput is the payload accepted by create and update operations.
type ProductInput struct {
	Title       string  `json:"title" validate:"product_title"`
	Price       float64 `json:"price" validate:"finite,gte=0"`
	Description string  `json:"description"`
	Image       string  `json:"image" validate:"required,url"`
	Category    string  `json:"category" validate:"catalog_category"`
}

// Equal reports whether two products share an id. Other fields are ignored.
func (p Product) Equal(other Product) bool {
	return p.ID == other.ID
}

// HasValidImage reports whether the image field parses as an absolute URL.
func (p Product) HasValidImage() bool {
	return IsValidURL(p.Image)
}

// IsExpensive reports whether the price is above ExpensiveThreshold.
func (p Product) IsExpensive() bool {
	return p.Price > ExpensiveThreshold
}

var (
	slugInvalidChars = regexp.MustCompile(`[^\w\s-]`)
	slugSpaces       = regexp.MustCompile(`\s+`)
	slugDashes       = regexp.MustCompile(`-{2,}`)
)

// Slug returns a URL friendly form of the title.
func (p Product) Slug() string {
	s := strings.ToLower(p.Title)
	s = slugInvalidChars.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// TruncatedTitle shortens the title to maxLen characters including suffix.
func (p Product) TruncatedTitle(maxLen int, suffix string) string {
	runes := []rune(p.Title)
	if len(runes) <= maxLen {
		return p.Title
	}
	cut := maxLen - len([]rune(suffix))
	if cut < 0 {
		cut = 0
	}
	return strings.TrimSpace(string(runes[:cut])) + suffix
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"MXN": "MX$",
	"COP": "COP ",
}

// FormattedPrice renders the price with its currency symbol.
func (p Product) FormattedPrice() string {
	currency := p.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	places := int32(2)
	if currency == "JPY" {
		places = 0
	}
	return currencySymbols[currency] + decimal.NewFromFloat(p.Price).StringFixed(places)
}

// IsValidURL reports whether s parses as an absolute URL.
func IsValidURL(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && (u.Host != "" || u.Opaque != "")
}

// IsValidID reports whether id can identify a stored product.
func IsValidID(id int64) bool {
	return id > 0
}

// RoundPrice rounds a price to two decimals.
func RoundPrice(price float64) float64 {
	return decimal.NewFromFloat(price).Round(2).InexactFloat64()
}

// SumPrices adds prices without accumulating float error.
func SumPrices(products []Product) float64 {
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(decimal.NewFromFloat(p.Price))
	}
	return total.Round(2).InexactFloat64()
}

var (
	titleSpaces       = regexp.MustCompile(`\s+`)
	titleInvalidChars = regexp.MustCompile(`[^\w\s\-.,()]`)
)

// NormalizeTitle trims the title, collapses whitespace and strips characters
// that are not letters, digits or basic punctuation.
func NormalizeTitle(title string) string {
	t := strings.TrimSpace(title)
	t = titleSpaces.ReplaceAllString(t, " ")
	return titleInvalidChars.ReplaceAllString(t, "")
}

// NormalizeCategory trims and lower-cases a category name.
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// NormalizeCurrency upper-cases a currency code, defaulting to DefaultCurrency.
func NormalizeCurrency(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// String implements fmt.Stringer for log lines.
func (p Product) String() string {
	return fmt.Sprintf("product #%d %q", p.ID, p.Title)
}
