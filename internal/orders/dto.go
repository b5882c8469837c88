package orders

import (
	"github.com/google/uuid"

	"github.com/packlane/orderflow/pkg/pagination"
	"github.com/packlane/orderflow/pkg/types"
)

// CreateOrderInput describes a new cart. Status starts null; address and
// contact may arrive later, before checkout. OrderNumber pre-assigns the
// number, skipping generation at checkout; it must be unique across orders.
type CreateOrderInput struct {
	UserID         uuid.UUID
	CurrencyCode   string
	CountryCode    string
	OrderNumber    *string
	BillingAddress *types.Address
	Contact        *types.Contact
	Context        types.ContextMap
}

// CheckoutInput carries the context patches merged into the order and its
// active payment/delivery entries before the cascade runs.
type CheckoutInput struct {
	OrderContext    types.ContextMap
	PaymentContext  types.ContextMap
	DeliveryContext types.ContextMap
}

// ListParams pages through orders, optionally scoped to one user.
type ListParams struct {
	UserID     *uuid.UUID
	Pagination pagination.Params
}
