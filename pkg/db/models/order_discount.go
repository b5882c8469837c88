package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/packlane/orderflow/pkg/enums"
	"github.com/packlane/orderflow/pkg/types"
)

// OrderDiscount is a discount reservation. OrderID stays null while the code
// is unclaimed; claiming is a two-phase operation (assign order, reserve with
// the adapter) with rollback of the assignment on adapter failure.
type OrderDiscount struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     *uuid.UUID            `gorm:"column:order_id;type:uuid;index"`
	Code        *string               `gorm:"column:code;type:text;index"`
	DiscountKey string                `gorm:"column:discount_key;type:text;not null"`
	Trigger     enums.DiscountTrigger `gorm:"column:trigger;type:text;not null"`
	Reservation types.ContextMap      `gorm:"column:reservation;type:jsonb;serializer:json"`
	Context     types.ContextMap      `gorm:"column:context;type:jsonb;serializer:json"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// IsClaimed reports whether the discount is attached to an order.
func (d *OrderDiscount) IsClaimed() bool {
	return d.OrderID != nil
}
