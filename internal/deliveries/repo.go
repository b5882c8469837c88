package deliveries

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a delivery ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, delivery *models.OrderDelivery) (*models.OrderDelivery, error) {
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return nil, err
	}
	return delivery, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderDelivery, error) {
	var delivery models.OrderDelivery
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&delivery).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderDelivery, error) {
	var rows []models.OrderDelivery
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindByOrderAndProvider(ctx context.Context, orderID uuid.UUID, providerID string) (*models.OrderDelivery, error) {
	var delivery models.OrderDelivery
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND provider_id = ?", orderID, providerID).
		First(&delivery).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) Save(ctx context.Context, delivery *models.OrderDelivery) error {
	return r.db.WithContext(ctx).Save(delivery).Error
}

func (r *repository) DeleteAllForOrder(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.OrderDelivery{}).Error
}
