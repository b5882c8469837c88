package enums

import "fmt"

// OrderStatus tracks the lifecycle of an order. A cart has no status at all;
// the Order model stores it as a nullable column.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusFulfilled OrderStatus = "FULFILLED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusRejected,
	OrderStatusFulfilled,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// Rank orders statuses along the forward lifecycle. CONFIRMED and REJECTED
// share a rank: both sit between PENDING and FULFILLED and neither precedes
// the other.
func (o OrderStatus) Rank() int {
	switch o {
	case OrderStatusPending:
		return 1
	case OrderStatusConfirmed, OrderStatusRejected:
		return 2
	case OrderStatusFulfilled:
		return 3
	default:
		return 0
	}
}

// RankOf returns the rank of a nullable status, treating nil as the cart rank.
func RankOf(status *OrderStatus) int {
	if status == nil {
		return 0
	}
	return status.Rank()
}

// IsTerminal reports whether auto-advance stops at this status.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusRejected || o == OrderStatusFulfilled
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
