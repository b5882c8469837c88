package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregateOrderPosition OutboxAggregateType = "order_position"
	AggregateOrderPayment  OutboxAggregateType = "order_payment"
	AggregateOrderDelivery OutboxAggregateType = "order_delivery"
	AggregateOrderDiscount OutboxAggregateType = "order_discount"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateOrderPosition,
	AggregateOrderPayment,
	AggregateOrderDelivery,
	AggregateOrderDiscount,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCheckout        OutboxEventType = "ORDER_CHECKOUT"
	EventOrderConfirmed       OutboxEventType = "ORDER_CONFIRMED"
	EventOrderRejected        OutboxEventType = "ORDER_REJECTED"
	EventOrderFulfilled       OutboxEventType = "ORDER_FULFILLED"
	EventOrderUpdated         OutboxEventType = "ORDER_UPDATED"
	EventOrderRemoved         OutboxEventType = "ORDER_REMOVED"
	EventOrderPositionAdded   OutboxEventType = "ORDER_POSITION_ADDED"
	EventOrderPositionUpdated OutboxEventType = "ORDER_POSITION_UPDATED"
	EventOrderPositionRemoved OutboxEventType = "ORDER_POSITION_REMOVED"
	EventOrderPaymentCreated  OutboxEventType = "ORDER_PAYMENT_CREATED"
	EventOrderPaymentUpdated  OutboxEventType = "ORDER_PAYMENT_UPDATED"
	EventOrderDeliveryCreated OutboxEventType = "ORDER_DELIVERY_CREATED"
	EventOrderDeliveryUpdated OutboxEventType = "ORDER_DELIVERY_UPDATED"
	EventOrderDiscountCreated OutboxEventType = "ORDER_DISCOUNT_CREATED"
	EventOrderDiscountRemoved OutboxEventType = "ORDER_DISCOUNT_REMOVED"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCheckout,
	EventOrderConfirmed,
	EventOrderRejected,
	EventOrderFulfilled,
	EventOrderUpdated,
	EventOrderRemoved,
	EventOrderPositionAdded,
	EventOrderPositionUpdated,
	EventOrderPositionRemoved,
	EventOrderPaymentCreated,
	EventOrderPaymentUpdated,
	EventOrderDeliveryCreated,
	EventOrderDeliveryUpdated,
	EventOrderDiscountCreated,
	EventOrderDiscountRemoved,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
