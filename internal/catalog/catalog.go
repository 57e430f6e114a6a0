// Package catalog holds the marketplace reference data: categories, brands,
// conditions, listing statuses, and the display price conversion.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Category is a top-level listing category with its subcategories
type Category struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}

// Categories is ordered as presented in the listing form
var Categories = []Category{
	{Name: "Sacs", Subcategories: []string{"Sacs à main", "Sacs bandoulière", "Pochettes", "Cabas", "Sacs à dos"}},
	{Name: "Chaussures", Subcategories: []string{"Escarpins", "Sneakers", "Bottes", "Sandales", "Mocassins"}},
	{Name: "Vêtements", Subcategories: []string{"Robes", "Manteaux", "Vestes", "Pantalons", "Chemises", "Pulls"}},
	{Name: "Accessoires", Subcategories: []string{"Foulards", "Ceintures", "Lunettes", "Portefeuilles"}},
	{Name: "Montres", Subcategories: []string{"Montres homme", "Montres femme"}},
	{Name: "Bijoux", Subcategories: []string{"Bagues", "Colliers", "Bracelets", "Boucles d'oreilles"}},
}

// BrandOther lets the seller type a brand that is not in the list
const BrandOther = "Autre"

var Brands = []string{
	"Hermès", "Louis Vuitton", "Chanel", "Dior", "Gucci", "Prada",
	"Cartier", "Rolex", "Van Cleef & Arpels", "Bulgari", BrandOther,
}

// Condition codes as stored on products
const (
	ConditionNewWithTags    = "new_with_tags"
	ConditionNewWithoutTags = "new_without_tags"
	ConditionExcellent      = "excellent"
	ConditionVeryGood       = "very_good"
	ConditionGood           = "good"
	ConditionFair           = "fair"
)

// ConditionOption pairs a condition code with its French label
type ConditionOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var Conditions = []ConditionOption{
	{ConditionNewWithTags, "Neuf avec étiquettes"},
	{ConditionNewWithoutTags, "Neuf sans étiquettes"},
	{ConditionExcellent, "Excellent état"},
	{ConditionVeryGood, "Très bon état"},
	{ConditionGood, "Bon état"},
	{ConditionFair, "État correct"},
}

// Listing statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusSold      = "sold"
)

var Statuses = []string{StatusDraft, StatusPublished, StatusActive, StatusPaused, StatusSold}

// InitialStatuses are the statuses a new listing may start in
var InitialStatuses = []string{StatusDraft, StatusPublished, StatusActive}

// VisibleStatuses are the statuses shown to buyers
var VisibleStatuses = []string{StatusPublished, StatusActive}

const (
	MinImages = 3
	MaxImages = 8
)

var (
	ErrUnknownCategory    = errors.New("unknown category")
	ErrUnknownSubcategory = errors.New("unknown subcategory")
	ErrUnknownBrand       = errors.New("unknown brand")
	ErrMissingCustomBrand = errors.New("custom brand required when brand is " + BrandOther)
	ErrUnknownCondition   = errors.New("unknown condition")
	ErrUnknownStatus      = errors.New("unknown status")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidInitial     = errors.New("a new listing must be draft, published or active")
)

// FindCategory returns the category with the given name
func FindCategory(name string) (Category, bool) {
	for _, c := range Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// ValidateCategory checks the category and, when given, its subcategory
func ValidateCategory(category, subcategory string) error {
	c, ok := FindCategory(category)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if subcategory == "" {
		return nil
	}
	for _, s := range c.Subcategories {
		if s == subcategory {
			return nil
		}
	}
	return fmt.Errorf("%w: %q in %q", ErrUnknownSubcategory, subcategory, category)
}

// ResolveBrand returns the brand to store. "Autre" is replaced by the custom name.
func ResolveBrand(brand, custom string) (string, error) {
	if brand == BrandOther {
		custom = strings.TrimSpace(custom)
		if custom == "" {
			return "", ErrMissingCustomBrand
		}
		return custom, nil
	}
	for _, b := range Brands {
		if b == brand {
			return brand, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBrand, brand)
}

func ValidateCondition(condition string) error {
	for _, c := range Conditions {
		if c.Value == condition {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownCondition, condition)
}

// ConditionLabel returns the French label, or the code itself when unknown
func ConditionLabel(condition string) string {
	for _, c := range Conditions {
		if c.Value == condition {
			return c.Label
		}
	}
	return condition
}

func ValidateStatus(status string) error {
	for _, s := range Statuses {
		if s == status {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
}

// ValidateInitialStatus checks the status a listing is created with
func ValidateInitialStatus(status string) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}
	for _, s := range InitialStatuses {
		if s == status {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidInitial, status)
}

// CanTransition reports whether a listing may move from one status to another.
// Sold is terminal and nothing moves back to draft.
func CanTransition(from, to string) error {
	if err := ValidateStatus(to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if from == StatusSold || to == StatusDraft {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Exchange rates from UZS used for display only
const (
	UZSToUSD = 0.00008
	UZSToEUR = 0.000074
)

// Price is a UZS amount with its converted display values
type Price struct {
	UZS int64   `json:"uzs"`
	USD float64 `json:"usd"`
	EUR float64 `json:"eur"`
}

// ConvertPrice converts a UZS amount, rounding to cents
func ConvertPrice(uzs int64) Price {
	return Price{
		UZS: uzs,
		USD: round2(float64(uzs) * UZSToUSD),
		EUR: round2(float64(uzs) * UZSToEUR),
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
