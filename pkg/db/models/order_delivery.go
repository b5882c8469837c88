package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/packlane/orderflow/pkg/enums"
	"github.com/packlane/orderflow/pkg/types"
)

// OrderDelivery is the delivery ledger entry for one provider attached to an
// order. At most one row exists per (order, provider) pair. A null status
// reads as OPEN; DeliveredAt is stamped exactly once, on the transition to
// DELIVERED.
type OrderDelivery struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index;uniqueIndex:ux_order_deliveries_provider"`
	ProviderID  string                `gorm:"column:provider_id;type:text;not null;uniqueIndex:ux_order_deliveries_provider"`
	Status      *enums.DeliveryStatus `gorm:"column:status;type:text"`
	Context     types.ContextMap      `gorm:"column:context;type:jsonb;serializer:json"`
	Calculation types.Calculation     `gorm:"column:calculation;type:jsonb;serializer:json"`
	Log         types.Log             `gorm:"column:log;type:jsonb;serializer:json"`
	DeliveredAt *time.Time            `gorm:"column:delivered_at"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectiveStatus normalizes the nullable stored status.
func (d *OrderDelivery) EffectiveStatus() enums.DeliveryStatus {
	return enums.NormalizeDeliveryStatus(d.Status)
}
