package positions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/db"
	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/enums"
	pkgerrors "github.com/packlane/orderflow/pkg/errors"
	"github.com/packlane/orderflow/pkg/logger"
	"github.com/packlane/orderflow/pkg/outbox"
	"github.com/packlane/orderflow/pkg/outbox/payloads"
	"github.com/packlane/orderflow/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns the position ledger. The tuple (order, product, original
// product, configuration) is the dedup key: adding the same tuple again
// increments the existing quantity instead of inserting a second row.
type Service struct {
	repo   Repository
	tx     txRunner
	events *outbox.Service
	logg   *logger.Logger
}

func NewService(repo Repository, tx txRunner, events *outbox.Service, logg *logger.Logger) *Service {
	return &Service{repo: repo, tx: tx, events: events, logg: logg}
}

// FindByID returns nil without error when the id is unknown.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderPosition, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPosition, error) {
	return s.repo.FindAllByOrder(ctx, orderID)
}

// FindActiveByOrder returns the positions counting toward the order, i.e.
// those with quantity above zero.
func (s *Service) FindActiveByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPosition, error) {
	all, err := s.repo.FindAllByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	active := make([]models.OrderPosition, 0, len(all))
	for _, position := range all {
		if position.Quantity > 0 {
			active = append(active, position)
		}
	}
	return active, nil
}

// AddProductItem upserts by the dedup key: an atomic quantity increment when
// the tuple already exists, an insert otherwise. A concurrent insert of the
// same tuple surfaces as a unique violation and is retried as an increment.
func (s *Service) AddProductItem(ctx context.Context, input AddProductItemInput) (*models.OrderPosition, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.OriginalProductID == uuid.Nil {
		input.OriginalProductID = input.ProductID
	}

	if err := s.guardCart(ctx, input.OrderID); err != nil {
		return nil, err
	}

	hash := input.Configuration.Hash()

	var position *models.OrderPosition
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		hit, err := repo.IncrementQuantity(ctx, input.OrderID, input.ProductID, input.OriginalProductID, hash, input.Quantity)
		if err != nil {
			return err
		}
		if hit {
			position, err = repo.FindByDedupKey(ctx, input.OrderID, input.ProductID, input.OriginalProductID, hash)
			if err != nil {
				return err
			}
			return s.emitPositionEvent(ctx, tx, enums.EventOrderPositionUpdated, position)
		}

		fresh := &models.OrderPosition{
			OrderID:           input.OrderID,
			ProductID:         input.ProductID,
			OriginalProductID: input.OriginalProductID,
			Quantity:          input.Quantity,
			Configuration:     input.Configuration,
			ConfigurationHash: hash,
			QuotationID:       input.QuotationID,
			ScheduledAt:       input.ScheduledAt,
			Calculation:       types.Calculation{},
		}
		position, err = repo.Create(ctx, fresh)
		if err != nil {
			return err
		}
		return s.emitPositionEvent(ctx, tx, enums.EventOrderPositionAdded, position)
	})
	if err == nil {
		return position, nil
	}
	if !db.IsUniqueViolation(err, "ux_order_positions_dedup") {
		return nil, err
	}

	// Lost the insert race: the row exists now, increment it.
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		hit, err := repo.IncrementQuantity(ctx, input.OrderID, input.ProductID, input.OriginalProductID, hash, input.Quantity)
		if err != nil {
			return err
		}
		if !hit {
			return pkgerrors.New(pkgerrors.CodeConflict, "position insert raced and row is gone")
		}
		position, err = repo.FindByDedupKey(ctx, input.OrderID, input.ProductID, input.OriginalProductID, hash)
		if err != nil {
			return err
		}
		return s.emitPositionEvent(ctx, tx, enums.EventOrderPositionUpdated, position)
	})
	if err != nil {
		return nil, err
	}
	return position, nil
}

// UpdateQuantity sets the quantity outright. Zero keeps the row for history
// while excluding it from active totals. Unknown ids are a no-op returning nil.
func (s *Service) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) (*models.OrderPosition, error) {
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}

	var position *models.OrderPosition
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByID(ctx, id)
		if err != nil || found == nil {
			return err
		}
		found.Quantity = quantity
		if err := repo.Save(ctx, found); err != nil {
			return err
		}
		position = found
		return s.emitPositionEvent(ctx, tx, enums.EventOrderPositionUpdated, position)
	})
	if err != nil {
		return nil, err
	}
	return position, nil
}

// UpdateCalculation replaces the pricing sheet wholesale.
func (s *Service) UpdateCalculation(ctx context.Context, id uuid.UUID, calc types.Calculation) (*models.OrderPosition, error) {
	position, err := s.repo.FindByID(ctx, id)
	if err != nil || position == nil {
		return position, err
	}

	position.Calculation = calc
	if err := s.repo.Save(ctx, position); err != nil {
		return nil, err
	}
	return position, nil
}

// Delete removes the position. Unknown ids are a no-op.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		position, err := repo.FindByID(ctx, id)
		if err != nil || position == nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.emitPositionEvent(ctx, tx, enums.EventOrderPositionRemoved, position)
	})
}

// RemoveProductFromOpenCarts deletes every position of the product from
// orders still in the cart state and returns the affected order ids so the
// caller can recalculate them. Used for catalog-driven cleanup when a product
// is deactivated.
func (s *Service) RemoveProductFromOpenCarts(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	var affected []uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.FindOpenCartPositionsByProduct(ctx, productID)
		if err != nil {
			return err
		}
		seen := make(map[uuid.UUID]struct{}, len(rows))
		for _, position := range rows {
			if err := repo.Delete(ctx, position.ID); err != nil {
				return err
			}
			if err := s.emitPositionEvent(ctx, tx, enums.EventOrderPositionRemoved, &position); err != nil {
				return err
			}
			if _, ok := seen[position.OrderID]; !ok {
				seen[position.OrderID] = struct{}{}
				affected = append(affected, position.OrderID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// DeleteAllForOrder removes every position of the order. Used by the order
// cascade delete.
func (s *Service) DeleteAllForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.repo.WithTx(tx).DeleteAllForOrder(ctx, orderID)
}

// guardCart rejects ledger additions once the order left the cart state.
func (s *Service) guardCart(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.FindOrderStatus(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", orderID)
	}
	if !order.IsCart() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer a cart")
	}
	return nil
}

func (s *Service) emitPositionEvent(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, position *models.OrderPosition) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrderPosition,
		AggregateID:   position.ID,
		Data: payloads.OrderPositionEvent{
			OrderID:    position.OrderID,
			PositionID: position.ID,
			ProductID:  position.ProductID,
			Quantity:   position.Quantity,
		},
	})
}
