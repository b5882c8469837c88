package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/packlane/orderflow/pkg/enums"
	"github.com/packlane/orderflow/pkg/types"
)

// OrderPayment is the payment ledger entry for one provider attached to an
// order. At most one row exists per (order, provider) pair. A null status
// reads as OPEN; PaidAt is stamped exactly once, on the transition to PAID.
type OrderPayment struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index;uniqueIndex:ux_order_payments_provider"`
	ProviderID  string               `gorm:"column:provider_id;type:text;not null;uniqueIndex:ux_order_payments_provider"`
	Status      *enums.PaymentStatus `gorm:"column:status;type:text"`
	Context     types.ContextMap     `gorm:"column:context;type:jsonb;serializer:json"`
	Calculation types.Calculation    `gorm:"column:calculation;type:jsonb;serializer:json"`
	Log         types.Log            `gorm:"column:log;type:jsonb;serializer:json"`
	PaidAt      *time.Time           `gorm:"column:paid_at"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectiveStatus normalizes the nullable stored status.
func (p *OrderPayment) EffectiveStatus() enums.PaymentStatus {
	return enums.NormalizePaymentStatus(p.Status)
}
