package enums

import "fmt"

// PaymentStatus tracks an order payment ledger entry. A freshly created entry
// has no status; readers normalize that to OPEN.
type PaymentStatus string

const (
	PaymentStatusOpen     PaymentStatus = "OPEN"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusOpen,
	PaymentStatusPaid,
	PaymentStatusRefunded,
}

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// NormalizePaymentStatus maps a nullable stored status to its effective value.
func NormalizePaymentStatus(status *PaymentStatus) PaymentStatus {
	if status == nil {
		return PaymentStatusOpen
	}
	return *status
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
