package discounts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/types"
)

// Repository is the persistence surface of the discount ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, discount *models.OrderDiscount) (*models.OrderDiscount, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderDiscount, error)
	FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderDiscount, error)
	FindByCode(ctx context.Context, code string) (*models.OrderDiscount, error)
	// ClaimOrder conditionally assigns the order to an unclaimed row and
	// reports whether the claim applied.
	ClaimOrder(ctx context.Context, id, orderID uuid.UUID) (bool, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
	UpdateReservation(ctx context.Context, id uuid.UUID, reservation types.ContextMap) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllForOrder(ctx context.Context, orderID uuid.UUID) error
}
