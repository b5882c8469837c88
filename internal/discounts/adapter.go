package discounts

import (
	"context"

	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/types"
)

// Adapter is the pluggable discount protocol. Each adapter owns the business
// rules of one discount kind; the engine only orchestrates reserve/release
// and stores the adapter-opaque reservation.
type Adapter interface {
	// Key identifies the adapter in the director registry.
	Key() string

	// Reserve claims the discount for the order and returns the opaque
	// reservation stored on the row. A failed reservation must leave no
	// claim behind on the adapter side.
	Reserve(ctx context.Context, discount *models.OrderDiscount, order *models.Order) (types.ContextMap, error)

	// Release gives the reservation back. Safe to call for rows that were
	// never successfully reserved.
	Release(ctx context.Context, discount *models.OrderDiscount) error

	IsValidForSystemTriggering(ctx context.Context, order *models.Order) (bool, error)
	IsValidForCodeTriggering(ctx context.Context, code string) (bool, error)

	// CalculationLines returns the discount's contribution to the order's
	// pricing sheet.
	CalculationLines(ctx context.Context, discount *models.OrderDiscount, order *models.Order) (types.Calculation, error)
}
