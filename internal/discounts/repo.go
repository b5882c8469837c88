package discounts

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/types"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a discount ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, discount *models.OrderDiscount) (*models.OrderDiscount, error) {
	if discount.ID == uuid.Nil {
		discount.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(discount).Error; err != nil {
		return nil, err
	}
	return discount, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderDiscount, error) {
	var discount models.OrderDiscount
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&discount).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

func (r *repository) FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderDiscount, error) {
	var rows []models.OrderDiscount
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.OrderDiscount, error) {
	var discount models.OrderDiscount
	err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&discount).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

// ClaimOrder only applies while the row is unclaimed, so two orders racing
// for the same code resolve to a single winner at the database.
func (r *repository) ClaimOrder(ctx context.Context, id, orderID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrderDiscount{}).
		Where("id = ? AND order_id IS NULL", id).
		Update("order_id", orderID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderDiscount{}).
		Where("id = ?", id).
		Update("order_id", nil).Error
}

// UpdateReservation writes the reservation as raw JSON: a column-keyed update
// bypasses the model serializer.
func (r *repository) UpdateReservation(ctx context.Context, id uuid.UUID, reservation types.ContextMap) error {
	payload, err := json.Marshal(reservation)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.OrderDiscount{}).
		Where("id = ?", id).
		Update("reservation", payload).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.OrderDiscount{}).Error
}

func (r *repository) DeleteAllForOrder(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.OrderDiscount{}).Error
}
