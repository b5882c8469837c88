package enums

import "fmt"

// DeliveryStatus tracks an order delivery ledger entry. A freshly created
// entry has no status; readers normalize that to OPEN.
type DeliveryStatus string

const (
	DeliveryStatusOpen      DeliveryStatus = "OPEN"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusReturned  DeliveryStatus = "RETURNED"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusOpen,
	DeliveryStatusDelivered,
	DeliveryStatusReturned,
}

func (d DeliveryStatus) String() string {
	return string(d)
}

func (d DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// NormalizeDeliveryStatus maps a nullable stored status to its effective value.
func NormalizeDeliveryStatus(status *DeliveryStatus) DeliveryStatus {
	if status == nil {
		return DeliveryStatusOpen
	}
	return *status
}

func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
