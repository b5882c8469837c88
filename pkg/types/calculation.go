package types

import (
	"github.com/shopspring/decimal"
)

// CalculationCategory classifies a pricing sheet line.
type CalculationCategory string

const (
	CalculationCategoryItem     CalculationCategory = "ITEM"
	CalculationCategoryDiscount CalculationCategory = "DISCOUNT"
	CalculationCategoryTax      CalculationCategory = "TAX"
	CalculationCategoryDelivery CalculationCategory = "DELIVERY"
	CalculationCategoryPayment  CalculationCategory = "PAYMENT"
)

// CalculationLine is one entry of a pricing sheet. Sheets are produced by
// external pricing adapters and stored verbatim; the engine never recomputes
// them.
type CalculationLine struct {
	Category CalculationCategory `json:"category"`
	Amount   decimal.Decimal     `json:"amount"`
	Meta     map[string]any      `json:"meta,omitempty"`
}

// Calculation is the pricing sheet attached to orders, positions, payments
// and deliveries. Persisted as a jsonb array.
type Calculation []CalculationLine

// Total sums every line of the sheet.
func (c Calculation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c {
		total = total.Add(line.Amount)
	}
	return total
}

// TotalForCategory sums the lines matching the given category.
func (c Calculation) TotalForCategory(category CalculationCategory) decimal.Decimal {
	total := decimal.Zero
	for _, line := range c {
		if line.Category == category {
			total = total.Add(line.Amount)
		}
	}
	return total
}

// IsZero reports whether the sheet carries no lines.
func (c Calculation) IsZero() bool {
	return len(c) == 0
}
