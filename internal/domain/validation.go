package domain

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	minTitleLength = 3
	maxTitleLength = 100
)

var (
	allowedCurrencies = map[string]struct{}{
		"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "MXN": {}, "COP": {},
	}
	blockedTitleWords = []string{"spam", "fake", "scam"}
	digitsOnly        = regexp.MustCompile(`^\d+$`)
)

// Rules normalizes and validates products against the catalog's value rules.
// It is safe for concurrent use once constructed.
type Rules struct {
	validate   *validator.Validate
	categories map[string]struct{}
}

// NewRules builds Rules for the given allowed categories.
// An empty list falls back to DefaultCategories.
func NewRules(categories []string) *Rules {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	r := &Rules{
		validate:   validator.New(),
		categories: make(map[string]struct{}, len(categories)),
	}
	for _, c := range categories {
		r.categories[NormalizeCategory(c)] = struct{}{}
	}

	// Registration only fails on empty tags or nil funcs.
	_ = r.validate.RegisterValidation("product_title", validateTitle)
	_ = r.validate.RegisterValidation("currency", validateCurrency)
	_ = r.validate.RegisterValidation("finite", validateFinite)
	_ = r.validate.RegisterValidation("catalog_category", func(fl validator.FieldLevel) bool {
		_, ok := r.categories[fl.Field().String()]
		return ok
	})
	return r
}

// NewProduct normalizes p and checks every field rule.
func (r *Rules) NewProduct(p Product) (Product, error) {
	p.Title = NormalizeTitle(p.Title)
	p.Price = RoundPrice(p.Price)
	p.Currency = NormalizeCurrency(p.Currency)
	p.Category = NormalizeCategory(p.Category)
	p.Image = strings.TrimSpace(p.Image)
	p.Description = strings.TrimSpace(p.Description)

	if err := r.validate.Struct(p); err != nil {
		return Product{}, toValidationError(err)
	}
	return p, nil
}

// NormalizeInput normalizes in and checks every field rule.
func (r *Rules) NormalizeInput(in ProductInput) (ProductInput, error) {
	in.Title = NormalizeTitle(in.Title)
	in.Price = RoundPrice(in.Price)
	in.Category = NormalizeCategory(in.Category)
	in.Image = strings.TrimSpace(in.Image)
	in.Description = strings.TrimSpace(in.Description)

	if err := r.validate.Struct(in); err != nil {
		return ProductInput{}, toValidationError(err)
	}
	return in, nil
}

func validateTitle(fl validator.FieldLevel) bool {
	title := fl.Field().String()
	n := len([]rune(title))
	if n < minTitleLength || n > maxTitleLength || strings.TrimSpace(title) == "" {
		return false
	}
	if digitsOnly.MatchString(strings.TrimSpace(title)) {
		return false
	}
	lower := strings.ToLower(title)
	for _, w := range blockedTitleWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}

func validateCurrency(fl validator.FieldLevel) bool {
	_, ok := allowedCurrencies[fl.Field().String()]
	return ok
}

func validateFinite(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// toValidationError reports the first failing field.
func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: fmt.Sprintf("value %v fails %q rule", fe.Value(), fe.Tag()),
		}
	}
	return &ValidationError{Message: err.Error()}
}
