package positions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/db/models"
)

// Repository is the persistence surface of the position ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, position *models.OrderPosition) (*models.OrderPosition, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderPosition, error)
	FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPosition, error)
	FindByDedupKey(ctx context.Context, orderID, productID, originalProductID uuid.UUID, configurationHash string) (*models.OrderPosition, error)
	// IncrementQuantity atomically adds delta to the row matching the dedup
	// key and reports whether a row was hit.
	IncrementQuantity(ctx context.Context, orderID, productID, originalProductID uuid.UUID, configurationHash string, delta int) (bool, error)
	Save(ctx context.Context, position *models.OrderPosition) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllForOrder(ctx context.Context, orderID uuid.UUID) error
	// FindOpenCartPositionsByProduct returns positions of the product that
	// belong to orders still in the cart state.
	FindOpenCartPositionsByProduct(ctx context.Context, productID uuid.UUID) ([]models.OrderPosition, error)
	FindOrderStatus(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}
