package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/packlane/orderflow/pkg/enums"
	"github.com/packlane/orderflow/pkg/types"
)

// Order is the root aggregate: a cart while Status is null, a placed order
// afterwards. Milestone timestamps are cumulative and never cleared.
type Order struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	Status         *enums.OrderStatus `gorm:"column:status;type:text;index"`
	OrderNumber    *string            `gorm:"column:order_number;type:text;uniqueIndex:ux_orders_order_number"`
	CurrencyCode   string             `gorm:"column:currency_code;type:text;not null"`
	CountryCode    string             `gorm:"column:country_code;type:text;not null"`
	BillingAddress *types.Address     `gorm:"column:billing_address;type:jsonb;serializer:json"`
	Contact        *types.Contact     `gorm:"column:contact;type:jsonb;serializer:json"`
	Context        types.ContextMap   `gorm:"column:context;type:jsonb;serializer:json"`
	Calculation    types.Calculation  `gorm:"column:calculation;type:jsonb;serializer:json"`
	Log            types.Log          `gorm:"column:log;type:jsonb;serializer:json"`

	// Pointers to the currently active ledger entries.
	PaymentID  *uuid.UUID `gorm:"column:payment_id;type:uuid"`
	DeliveryID *uuid.UUID `gorm:"column:delivery_id;type:uuid"`

	// Cumulative milestone timestamps, each set once.
	OrderedAt   *time.Time `gorm:"column:ordered_at"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	RejectedAt  *time.Time `gorm:"column:rejected_at"`
	FulfilledAt *time.Time `gorm:"column:fulfilled_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IsCart reports whether the order has not been checked out yet.
func (o *Order) IsCart() bool {
	return o.Status == nil
}

// StatusIs reports whether the order currently holds the given status.
func (o *Order) StatusIs(status enums.OrderStatus) bool {
	return o.Status != nil && *o.Status == status
}
