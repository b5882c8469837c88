package adapters

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/types"
)

func TestPercentOffCalculationLines(t *testing.T) {
	adapter := NewPercentOff("percent-off", 10)
	order := &models.Order{
		Calculation: types.Calculation{
			{Category: types.CalculationCategoryItem, Amount: decimal.NewFromInt(2000)},
			{Category: types.CalculationCategoryDelivery, Amount: decimal.NewFromInt(499)},
		},
	}

	lines, err := adapter.CalculationLines(context.Background(), nil, order)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, types.CalculationCategoryDiscount, lines[0].Category)
	assert.True(t, lines[0].Amount.Equal(decimal.NewFromInt(-200)))
}

func TestPercentOffEmptyOrder(t *testing.T) {
	adapter := NewPercentOff("percent-off", 10)

	lines, err := adapter.CalculationLines(context.Background(), nil, &models.Order{})
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestPercentOffCodeTriggeringOnly(t *testing.T) {
	adapter := NewPercentOff("percent-off", 10)
	ctx := context.Background()

	system, err := adapter.IsValidForSystemTriggering(ctx, &models.Order{})
	require.NoError(t, err)
	assert.False(t, system)

	code, err := adapter.IsValidForCodeTriggering(ctx, "SUMMER24")
	require.NoError(t, err)
	assert.True(t, code)
}
