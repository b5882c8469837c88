package discounts

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

// Service manages discount reservations. Claiming a code is a two-phase
// operation: assign the order at the database, then reserve with the adapter,
// rolling the assignment back if the adapter refuses.
type Service struct {
	repo     Repository
	director *Director
	tx       txRunner
	events   *outbox.Service
	logg     *logger.Logger
}

func NewService(repo Repository, director *Director, tx txRunner, events *outbox.Service, logg *logger.Logger) *Service {
	return &Service{repo: repo, director: director, tx: tx, events: events, logg: logg}
}

// FindByID returns nil without error when the id is unknown.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderDiscount, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderDiscount, error) {
	return s.repo.FindAllByOrder(ctx, orderID)
}

// CreateManualOrderDiscount redeems a user-entered code for the order.
// An existing unclaimed row with that code is claimed; otherwise a configured
// static code creates a fresh row. Unknown codes fail with "code not valid",
// codes already attached to this order with "code already present".
func (s *Service) CreateManualOrderDiscount(ctx context.Context, order *models.Order, code string) (*models.OrderDiscount, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount code required")
	}

	existing, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.claimExisting(ctx, order, existing)
	}

	key, ok := s.director.ResolveStaticCode(code)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code not valid")
	}
	return s.createFromStaticCode(ctx, order, code, key)
}

// claimExisting enforces single-use codes: the conditional claim applies for
// exactly one order, then the adapter reserves. Adapter failure rolls the
// claim back.
func (s *Service) claimExisting(ctx context.Context, order *models.Order, discount *models.OrderDiscount) (*models.OrderDiscount, error) {
	if discount.OrderID != nil && *discount.OrderID == order.ID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "code already present")
	}

	claimed, err := s.repo.ClaimOrder(ctx, discount.ID, order.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "code already present")
	}
	discount.OrderID = &order.ID

	adapter, err := s.director.Resolve(discount.DiscountKey)
	if err != nil {
		s.rollbackClaim(ctx, discount)
		return nil, err
	}

	reservation, err := adapter.Reserve(ctx, discount, order)
	if err != nil {
		s.rollbackClaim(ctx, discount)
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "reserving discount")
	}
	discount.Reservation = reservation
	if err := s.repo.UpdateReservation(ctx, discount.ID, reservation); err != nil {
		s.rollbackClaim(ctx, discount)
		return nil, err
	}

	if err := s.emitDiscountEvent(ctx, enums.EventOrderDiscountCreated, discount); err != nil {
		return nil, err
	}
	return discount, nil
}

// createFromStaticCode creates a fresh row for a configured code and reserves
// it, deleting the row and releasing via the adapter if reservation fails.
func (s *Service) createFromStaticCode(ctx context.Context, order *models.Order, code, key string) (*models.OrderDiscount, error) {
	adapter, err := s.director.Resolve(key)
	if err != nil {
		return nil, err
	}

	discount := &models.OrderDiscount{
		OrderID:     &order.ID,
		Code:        &code,
		DiscountKey: key,
		Trigger:     enums.DiscountTriggerUser,
		Reservation: types.ContextMap{},
		Context:     types.ContextMap{},
	}
	discount, err = s.repo.Create(ctx, discount)
	if err != nil {
		return nil, err
	}

	reservation, err := adapter.Reserve(ctx, discount, order)
	if err != nil {
		// Best-effort cleanup of the half-created row.
		if releaseErr := adapter.Release(ctx, discount); releaseErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "discount_id", discount.ID.String()), "discount release during rollback failed")
		}
		if deleteErr := s.repo.Delete(ctx, discount.ID); deleteErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "discount_id", discount.ID.String()), "discount row cleanup during rollback failed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "reserving discount")
	}
	discount.Reservation = reservation
	if err := s.repo.UpdateReservation(ctx, discount.ID, reservation); err != nil {
		return nil, err
	}

	if err := s.emitDiscountEvent(ctx, enums.EventOrderDiscountCreated, discount); err != nil {
		return nil, err
	}
	return discount, nil
}

// CreateSystemDiscount attaches a system-triggered discount to the order
// without a code and without an adapter reservation.
func (s *Service) CreateSystemDiscount(ctx context.Context, order *models.Order, key string) (*models.OrderDiscount, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	adapter, err := s.director.Resolve(key)
	if err != nil {
		return nil, err
	}
	valid, err := adapter.IsValidForSystemTriggering(ctx, order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "validating system discount")
	}
	if !valid {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "discount %q not applicable", key)
	}

	discount := &models.OrderDiscount{
		OrderID:     &order.ID,
		DiscountKey: key,
		Trigger:     enums.DiscountTriggerSystem,
		Reservation: types.ContextMap{},
		Context:     types.ContextMap{},
	}
	discount, err = s.repo.Create(ctx, discount)
	if err != nil {
		return nil, err
	}
	if err := s.emitDiscountEvent(ctx, enums.EventOrderDiscountCreated, discount); err != nil {
		return nil, err
	}
	return discount, nil
}

// Delete removes the discount. USER-triggered rows release their adapter
// reservation first; SYSTEM rows were never explicitly reserved and are
// deleted outright. Unknown ids are a no-op.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	discount, err := s.repo.FindByID(ctx, id)
	if err != nil || discount == nil {
		return err
	}

	if discount.Trigger == enums.DiscountTriggerUser {
		adapter, err := s.director.Resolve(discount.DiscountKey)
		if err != nil {
			return err
		}
		if err := adapter.Release(ctx, discount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "releasing discount")
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.emitDiscountEvent(ctx, enums.EventOrderDiscountRemoved, discount)
}

// IsValid delegates to the adapter's trigger-specific validity check.
func (s *Service) IsValid(ctx context.Context, discount *models.OrderDiscount, order *models.Order) (bool, error) {
	if discount == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "discount required")
	}
	adapter, err := s.director.Resolve(discount.DiscountKey)
	if err != nil {
		return false, err
	}
	if discount.Trigger == enums.DiscountTriggerSystem {
		return adapter.IsValidForSystemTriggering(ctx, order)
	}
	code := ""
	if discount.Code != nil {
		code = *discount.Code
	}
	return adapter.IsValidForCodeTriggering(ctx, code)
}

// CalculationLines returns the discount's contribution to the pricing sheet.
func (s *Service) CalculationLines(ctx context.Context, discount *models.OrderDiscount, order *models.Order) (types.Calculation, error) {
	adapter, err := s.director.Resolve(discount.DiscountKey)
	if err != nil {
		return nil, err
	}
	return adapter.CalculationLines(ctx, discount, order)
}

// ReleaseAllForOrder releases and deletes the order's discounts. Used by the
// order cascade delete.
func (s *Service) ReleaseAllForOrder(ctx context.Context, orderID uuid.UUID) error {
	rows, err := s.repo.FindAllByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, discount := range rows {
		if err := s.Delete(ctx, discount.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) rollbackClaim(ctx context.Context, discount *models.OrderDiscount) {
	if err := s.repo.ReleaseClaim(ctx, discount.ID); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "discount_id", discount.ID.String()), "discount claim rollback failed", err)
	}
	discount.OrderID = nil
}

func (s *Service) emitDiscountEvent(ctx context.Context, eventType enums.OutboxEventType, discount *models.OrderDiscount) error {
	code := ""
	if discount.Code != nil {
		code = *discount.Code
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrderDiscount,
			AggregateID:   discount.ID,
			Data: payloads.OrderDiscountEvent{
				DiscountID:  discount.ID,
				OrderID:     discount.OrderID,
				DiscountKey: discount.DiscountKey,
				Code:        code,
				Trigger:     discount.Trigger,
			},
		})
	})
}
