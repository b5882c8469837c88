package deliveries

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/db/models"
)

// Repository is the persistence surface of the delivery ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, delivery *models.OrderDelivery) (*models.OrderDelivery, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderDelivery, error)
	FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderDelivery, error)
	FindByOrderAndProvider(ctx context.Context, orderID uuid.UUID, providerID string) (*models.OrderDelivery, error)
	Save(ctx context.Context, delivery *models.OrderDelivery) error
	DeleteAllForOrder(ctx context.Context, orderID uuid.UUID) error
}
