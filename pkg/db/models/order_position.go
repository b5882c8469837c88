package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/packlane/orderflow/pkg/types"
)

// OrderPosition is a line item. The tuple (order, product, original product,
// configuration) is the dedup key: adding the same tuple again increments
// Quantity instead of inserting a second row. Quantity 0 keeps the row for
// history but excludes it from active totals.
type OrderPosition struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index;uniqueIndex:ux_order_positions_dedup"`
	ProductID         uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index;uniqueIndex:ux_order_positions_dedup"`
	OriginalProductID uuid.UUID           `gorm:"column:original_product_id;type:uuid;not null;uniqueIndex:ux_order_positions_dedup"`
	Quantity          int                 `gorm:"column:quantity;not null;default:0"`
	Configuration     types.Configuration `gorm:"column:configuration;type:jsonb;serializer:json"`
	ConfigurationHash string              `gorm:"column:configuration_hash;type:text;not null;default:'';uniqueIndex:ux_order_positions_dedup"`
	QuotationID       *uuid.UUID          `gorm:"column:quotation_id;type:uuid"`
	ScheduledAt       *time.Time          `gorm:"column:scheduled_at"`
	Calculation       types.Calculation   `gorm:"column:calculation;type:jsonb;serializer:json"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
