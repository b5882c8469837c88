// Package payloads holds the typed payload schemas stored inside outbox
// envelopes. Consumers decode against these via the registry.
package payloads

import (
	"github.com/google/uuid"

	"github.com/packlane/orderflow/pkg/enums"
)

// OrderCheckoutEvent is emitted once per order, on the cart→PENDING edge.
type OrderCheckoutEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	OrderNumber string    `json:"order_number"`
}

// OrderStatusEvent is emitted on every committed status transition.
type OrderStatusEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	UserID      uuid.UUID         `json:"user_id"`
	Status      enums.OrderStatus `json:"status"`
	OrderNumber string            `json:"order_number,omitempty"`
	Info        string            `json:"info,omitempty"`
}

// OrderUpdatedEvent covers context/address/contact/provider mutations on the
// root order while it is still mutable.
type OrderUpdatedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Field   string    `json:"field"`
}

// OrderPositionEvent covers position ledger mutations.
type OrderPositionEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	PositionID uuid.UUID `json:"position_id"`
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int       `json:"quantity"`
}

// OrderPaymentEvent covers payment ledger mutations.
type OrderPaymentEvent struct {
	OrderID    uuid.UUID           `json:"order_id"`
	PaymentID  uuid.UUID           `json:"payment_id"`
	ProviderID string              `json:"provider_id"`
	Status     enums.PaymentStatus `json:"status"`
}

// OrderDeliveryEvent covers delivery ledger mutations.
type OrderDeliveryEvent struct {
	OrderID    uuid.UUID            `json:"order_id"`
	DeliveryID uuid.UUID            `json:"delivery_id"`
	ProviderID string               `json:"provider_id"`
	Status     enums.DeliveryStatus `json:"status"`
}

// OrderDiscountEvent covers discount reservation lifecycle changes.
type OrderDiscountEvent struct {
	DiscountID  uuid.UUID             `json:"discount_id"`
	OrderID     *uuid.UUID            `json:"order_id,omitempty"`
	DiscountKey string                `json:"discount_key"`
	Code        string                `json:"code,omitempty"`
	Trigger     enums.DiscountTrigger `json:"trigger"`
}

// OrderRemovedEvent is emitted when a cart and its ledger entries are deleted.
type OrderRemovedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}
