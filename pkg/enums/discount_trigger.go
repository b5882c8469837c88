package enums

import "fmt"

// DiscountTrigger records how a discount got attached to an order.
type DiscountTrigger string

const (
	// DiscountTriggerUser marks discounts redeemed by a manual code.
	DiscountTriggerUser DiscountTrigger = "USER"
	// DiscountTriggerSystem marks discounts the pricing engine applied on its own.
	DiscountTriggerSystem DiscountTrigger = "SYSTEM"
)

func (d DiscountTrigger) String() string {
	return string(d)
}

func (d DiscountTrigger) IsValid() bool {
	return d == DiscountTriggerUser || d == DiscountTriggerSystem
}

func ParseDiscountTrigger(value string) (DiscountTrigger, error) {
	switch DiscountTrigger(value) {
	case DiscountTriggerUser:
		return DiscountTriggerUser, nil
	case DiscountTriggerSystem:
		return DiscountTriggerSystem, nil
	default:
		return "", fmt.Errorf("invalid discount trigger %q", value)
	}
}
