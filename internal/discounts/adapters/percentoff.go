// Package adapters ships the built-in discount adapters. External adapters
// register through the same interface at startup.
package adapters

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/types"
)

// PercentOff grants a flat percentage off the order's item total. Codes
// mapped to it via the static code table are unlimited-use; reservation is
// a bookkeeping no-op.
type PercentOff struct {
	key     string
	percent decimal.Decimal
}

// NewPercentOff builds an adapter granting the given percentage (0..100).
func NewPercentOff(key string, percent int64) *PercentOff {
	return &PercentOff{
		key:     key,
		percent: decimal.NewFromInt(percent),
	}
}

func (p *PercentOff) Key() string {
	return p.key
}

func (p *PercentOff) Reserve(ctx context.Context, discount *models.OrderDiscount, order *models.Order) (types.ContextMap, error) {
	return types.ContextMap{
		"percent": p.percent.String(),
	}, nil
}

func (p *PercentOff) Release(ctx context.Context, discount *models.OrderDiscount) error {
	return nil
}

func (p *PercentOff) IsValidForSystemTriggering(ctx context.Context, order *models.Order) (bool, error) {
	return false, nil
}

func (p *PercentOff) IsValidForCodeTriggering(ctx context.Context, code string) (bool, error) {
	return code != "", nil
}

func (p *PercentOff) CalculationLines(ctx context.Context, discount *models.OrderDiscount, order *models.Order) (types.Calculation, error) {
	if order == nil {
		return types.Calculation{}, nil
	}
	itemTotal := order.Calculation.TotalForCategory(types.CalculationCategoryItem)
	if itemTotal.IsZero() {
		return types.Calculation{}, nil
	}

	hundred := decimal.NewFromInt(100)
	amount := itemTotal.Mul(p.percent).Div(hundred).Neg()
	return types.Calculation{
		{
			Category: types.CalculationCategoryDiscount,
			Amount:   amount,
			Meta: map[string]any{
				"discount_key": p.key,
				"percent":      p.percent.String(),
			},
		},
	}, nil
}
