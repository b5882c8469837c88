package positions

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

// NewRepository builds a position ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, position *models.OrderPosition) (*models.OrderPosition, error) {
	if position.ID == uuid.Nil {
		position.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(position).Error; err != nil {
		return nil, err
	}
	return position, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderPosition, error) {
	var position models.OrderPosition
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &position, nil
}

func (r *repository) FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPosition, error) {
	var rows []models.OrderPosition
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindByDedupKey(ctx context.Context, orderID, productID, originalProductID uuid.UUID, configurationHash string) (*models.OrderPosition, error) {
	var position models.OrderPosition
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND product_id = ? AND original_product_id = ? AND configuration_hash = ?",
			orderID, productID, originalProductID, configurationHash).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &position, nil
}

func (r *repository) IncrementQuantity(ctx context.Context, orderID, productID, originalProductID uuid.UUID, configurationHash string, delta int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrderPosition{}).
		Where("order_id = ? AND product_id = ? AND original_product_id = ? AND configuration_hash = ?",
			orderID, productID, originalProductID, configurationHash).
		Update("quantity", gorm.Expr("quantity + ?", delta))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Save(ctx context.Context, position *models.OrderPosition) error {
	return r.db.WithContext(ctx).Save(position).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.OrderPosition{}).Error
}

func (r *repository) DeleteAllForOrder(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.OrderPosition{}).Error
}

func (r *repository) FindOpenCartPositionsByProduct(ctx context.Context, productID uuid.UUID) ([]models.OrderPosition, error) {
	var rows []models.OrderPosition
	err := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = order_positions.order_id").
		Where("order_positions.product_id = ? AND orders.status IS NULL", productID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindOrderStatus(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Select("id", "status").
		Where("id = ?", orderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
