package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/db/models"
)

// Repository is the persistence surface of the payment ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.OrderPayment) (*models.OrderPayment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderPayment, error)
	FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPayment, error)
	FindByOrderAndProvider(ctx context.Context, orderID uuid.UUID, providerID string) (*models.OrderPayment, error)
	Save(ctx context.Context, payment *models.OrderPayment) error
	DeleteAllForOrder(ctx context.Context, orderID uuid.UUID) error
}
