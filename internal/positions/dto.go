package positions

import (
	"time"

	"github.com/google/uuid"

	"github.com/packlane/orderflow/pkg/types"
)

// AddProductItemInput describes one add-to-cart request. OrderID, ProductID
// and Quantity are required; OriginalProductID defaults to ProductID when the
// item was not substituted.
type AddProductItemInput struct {
	OrderID           uuid.UUID
	ProductID         uuid.UUID
	OriginalProductID uuid.UUID
	Quantity          int
	Configuration     types.Configuration
	QuotationID       *uuid.UUID
	ScheduledAt       *time.Time
}
