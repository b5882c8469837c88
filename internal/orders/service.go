package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/internal/deliveries"
	"github.com/packlane/orderflow/internal/discounts"
	"github.com/packlane/orderflow/internal/payments"
	"github.com/packlane/orderflow/internal/positions"
	"github.com/packlane/orderflow/pkg/config"
	"github.com/packlane/orderflow/pkg/db"
	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/enums"
	pkgerrors "github.com/packlane/orderflow/pkg/errors"
	"github.com/packlane/orderflow/pkg/logger"
	"github.com/packlane/orderflow/pkg/metrics"
	"github.com/packlane/orderflow/pkg/outbox"
	"github.com/packlane/orderflow/pkg/outbox/payloads"
	"github.com/packlane/orderflow/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// maxOrderNumberAttempts bounds the collision-retry loop during order number
// assignment.
const maxOrderNumberAttempts = 10

// Service owns the root order aggregate: cart CRUD, the guarded merge-patch
// updates, provider attachment, and the authoritative status commit
// primitive.
type Service struct {
	repo       Repository
	tx         txRunner
	events     *outbox.Service
	positions  *positions.Service
	payments   *payments.Service
	deliveries *deliveries.Service
	discounts  *discounts.Service
	metrics    *metrics.EngineMetrics
	validate   *validator.Validate
	cfg        config.CheckoutConfig
	logg       *logger.Logger
}

func NewService(
	repo Repository,
	tx txRunner,
	events *outbox.Service,
	positionSvc *positions.Service,
	paymentSvc *payments.Service,
	deliverySvc *deliveries.Service,
	discountSvc *discounts.Service,
	m *metrics.EngineMetrics,
	cfg config.CheckoutConfig,
	logg *logger.Logger,
) *Service {
	return &Service{
		repo:       repo,
		tx:         tx,
		events:     events,
		positions:  positionSvc,
		payments:   paymentSvc,
		deliveries: deliverySvc,
		discounts:  discountSvc,
		metrics:    m,
		validate:   validator.New(),
		cfg:        cfg,
		logg:       logg,
	}
}

// Create inserts a new cart-status order.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.CurrencyCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency code required")
	}
	if input.BillingAddress != nil {
		if err := s.validate.Struct(input.BillingAddress); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing address")
		}
	}
	if input.Contact != nil {
		if err := s.validate.Struct(input.Contact); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid contact")
		}
	}
	if input.OrderNumber != nil {
		if *input.OrderNumber == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must not be empty")
		}
		taken, err := s.repo.OrderNumberExists(ctx, *input.OrderNumber)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "order number %s already in use", *input.OrderNumber)
		}
	}

	order := &models.Order{
		UserID:         input.UserID,
		CurrencyCode:   input.CurrencyCode,
		CountryCode:    input.CountryCode,
		OrderNumber:    input.OrderNumber,
		BillingAddress: input.BillingAddress,
		Contact:        input.Contact,
		Context:        input.Context,
		Calculation:    types.Calculation{},
		Log:            types.Log{},
	}
	if order.Context == nil {
		order.Context = types.ContextMap{}
	}
	created, err := s.repo.Create(ctx, order)
	if input.OrderNumber != nil && db.IsUniqueViolation(err, "ux_orders_order_number") {
		// Pre-check raced with a concurrent assignment of the same number.
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "order number %s already in use", *input.OrderNumber)
	}
	return created, err
}

// FindByID returns nil without error when the id is unknown.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindAllByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return s.repo.FindAllByUser(ctx, userID)
}

// List pages through orders newest-first, scoped to one user when
// params.UserID is set.
func (s *Service) List(ctx context.Context, params ListParams) ([]models.Order, string, error) {
	return s.repo.List(ctx, params.UserID, params.Pagination)
}

// UpdateBillingAddress replaces the billing address while the order is still
// mutable (cart or PENDING). Returns nil when the guard fails.
func (s *Service) UpdateBillingAddress(ctx context.Context, orderID uuid.UUID, address types.Address) (*models.Order, error) {
	if err := s.validate.Struct(&address); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing address")
	}
	return s.guardedUpdate(ctx, orderID, func(order *models.Order) {
		order.BillingAddress = &address
	})
}

// UpdateContact replaces the contact while the order is still mutable.
// Returns nil when the guard fails.
func (s *Service) UpdateContact(ctx context.Context, orderID uuid.UUID, contact types.Contact) (*models.Order, error) {
	if err := s.validate.Struct(&contact); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid contact")
	}
	return s.guardedUpdate(ctx, orderID, func(order *models.Order) {
		order.Contact = &contact
	})
}

// UpdateContext merges the patch into the order context field by field while
// the order is still mutable. Returns nil when the guard fails.
func (s *Service) UpdateContext(ctx context.Context, orderID uuid.UUID, patch types.ContextMap) (*models.Order, error) {
	if len(patch) == 0 {
		return s.repo.FindByID(ctx, orderID)
	}
	return s.guardedUpdate(ctx, orderID, func(order *models.Order) {
		order.Context = order.Context.Merge(patch)
	})
}

// UpdateCalculation replaces the order pricing sheet wholesale.
func (s *Service) UpdateCalculation(ctx context.Context, orderID uuid.UUID, calc types.Calculation) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil || order == nil {
		return order, err
	}
	order.Calculation = calc
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// guardedUpdate applies mutate while status is null or PENDING; once past
// PENDING the root order is immutable and the guard returns nil.
func (s *Service) guardedUpdate(ctx context.Context, orderID uuid.UUID, mutate func(order *models.Order)) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil || order == nil {
		return nil, err
	}
	if order.Status != nil && *order.Status != enums.OrderStatusPending {
		return nil, nil
	}

	mutate(order)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, order); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          payloads.OrderUpdatedEvent{OrderID: order.ID, Field: "order"},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// SetPaymentProvider attaches the provider's payment ledger entry to the
// order, creating it on first use. Pointing at an already attached entry is
// a no-op that emits nothing.
func (s *Service) SetPaymentProvider(ctx context.Context, orderID uuid.UUID, providerID string) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil || order == nil {
		return order, err
	}

	payment, err := s.payments.FindByOrderAndProvider(ctx, orderID, providerID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		payment, err = s.payments.Create(ctx, orderID, providerID)
		if err != nil {
			return nil, err
		}
	}

	if order.PaymentID != nil && *order.PaymentID == payment.ID {
		return order, nil
	}

	order.PaymentID = &payment.ID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, order); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          payloads.OrderUpdatedEvent{OrderID: order.ID, Field: "payment_id"},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// SetDeliveryProvider attaches the provider's delivery ledger entry to the
// order, creating it on first use. Pointing at an already attached entry is
// a no-op that emits nothing.
func (s *Service) SetDeliveryProvider(ctx context.Context, orderID uuid.UUID, providerID string) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil || order == nil {
		return order, err
	}

	delivery, err := s.deliveries.FindByOrderAndProvider(ctx, orderID, providerID)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		delivery, err = s.deliveries.Create(ctx, orderID, providerID)
		if err != nil {
			return nil, err
		}
	}

	if order.DeliveryID != nil && *order.DeliveryID == delivery.ID {
		return order, nil
	}

	order.DeliveryID = &delivery.ID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, order); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          payloads.OrderUpdatedEvent{OrderID: order.ID, Field: "delivery_id"},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// milestoneTimestamps maps each status to its cumulative timestamp column.
var milestoneTimestamps = map[enums.OrderStatus]string{
	enums.OrderStatusPending:   "ordered_at",
	enums.OrderStatusConfirmed: "confirmed_at",
	enums.OrderStatusRejected:  "rejected_at",
	enums.OrderStatusFulfilled: "fulfilled_at",
}

func milestoneStamped(order *models.Order, status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPending:
		return order.OrderedAt != nil
	case enums.OrderStatusConfirmed:
		return order.ConfirmedAt != nil
	case enums.OrderStatusRejected:
		return order.RejectedAt != nil
	case enums.OrderStatusFulfilled:
		return order.FulfilledAt != nil
	}
	return false
}

// milestonesCrossed lists the statuses whose timestamps the transition into
// target must stamp, oldest first. Reaching a later state back-fills the
// earlier ones that were skipped; REJECTED back-fills PENDING only.
func milestonesCrossed(order *models.Order, target enums.OrderStatus) []enums.OrderStatus {
	var crossed []enums.OrderStatus
	if target == enums.OrderStatusRejected {
		if !milestoneStamped(order, enums.OrderStatusPending) {
			crossed = append(crossed, enums.OrderStatusPending)
		}
		if !milestoneStamped(order, enums.OrderStatusRejected) {
			crossed = append(crossed, enums.OrderStatusRejected)
		}
		return crossed
	}
	for _, milestone := range []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusConfirmed,
		enums.OrderStatusFulfilled,
	} {
		if milestone.Rank() > target.Rank() {
			break
		}
		if !milestoneStamped(order, milestone) {
			crossed = append(crossed, milestone)
		}
	}
	return crossed
}

func statusEventType(status enums.OrderStatus) (enums.OutboxEventType, bool) {
	switch status {
	case enums.OrderStatusConfirmed:
		return enums.EventOrderConfirmed, true
	case enums.OrderStatusRejected:
		return enums.EventOrderRejected, true
	case enums.OrderStatusFulfilled:
		return enums.EventOrderFulfilled, true
	}
	return "", false
}

// UpdateStatus is the atomic status commit primitive. It is a no-op when the
// order already holds the target status. Milestone timestamps are cumulative:
// the transition stamps every milestone crossed on the way to target and logs
// one entry per milestone. The write is conditional on the stored status
// still differing from target, so of two racing callers exactly one commits
// and emits; the loser re-reads and returns the current order. The order
// number is assigned on the first transition out of the cart state, with
// collision retry over an incrementing salt.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, info string) (*models.Order, error) {
	if !target.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", target)
	}

	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		order, err := s.repo.FindByID(ctx, orderID)
		if err != nil || order == nil {
			return nil, err
		}
		if order.StatusIs(target) {
			return order, nil
		}

		now := time.Now().UTC()
		fields := map[string]any{
			"status":     target.String(),
			"updated_at": now,
		}

		crossed := milestonesCrossed(order, target)
		newLog := order.Log
		targetLogged := false
		for _, milestone := range crossed {
			fields[milestoneTimestamps[milestone]] = now
			entryInfo := ""
			if milestone == target {
				entryInfo = info
				targetLogged = true
			}
			newLog = newLog.Append(milestone.String(), entryInfo)
		}
		if !targetLogged {
			// Record-keeping transition into an already stamped state.
			newLog = newLog.Append(target.String(), info)
		}
		// Column-keyed updates bypass the model serializer, so the log is
		// written as raw JSON.
		logJSON, err := json.Marshal(newLog)
		if err != nil {
			return nil, err
		}
		fields["log"] = logJSON

		checkoutEdge := order.IsCart()
		orderNumber := order.OrderNumber
		if checkoutEdge && orderNumber == nil {
			candidate := GenerateOrderNumber(order.ID, attempt, s.cfg.OrderNumberLength)
			taken, err := s.repo.OrderNumberExists(ctx, candidate)
			if err != nil {
				return nil, err
			}
			if taken {
				continue
			}
			fields["order_number"] = candidate
			orderNumber = &candidate
		}

		applied := false
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.UpdateStatusFields(ctx, order.ID, target, fields)
			if err != nil {
				return err
			}
			applied = ok
			if !ok {
				return nil
			}

			number := ""
			if orderNumber != nil {
				number = *orderNumber
			}
			if checkoutEdge {
				if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventOrderCheckout,
					AggregateType: enums.AggregateOrder,
					AggregateID:   order.ID,
					Data: payloads.OrderCheckoutEvent{
						OrderID:     order.ID,
						UserID:      order.UserID,
						OrderNumber: number,
					},
				}); err != nil {
					return err
				}
			}
			if eventType, ok := statusEventType(target); ok {
				if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     eventType,
					AggregateType: enums.AggregateOrder,
					AggregateID:   order.ID,
					Data: payloads.OrderStatusEvent{
						OrderID:     order.ID,
						UserID:      order.UserID,
						Status:      target,
						OrderNumber: number,
						Info:        info,
					},
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if db.IsUniqueViolation(err, "ux_orders_order_number") {
			// Order number raced with a concurrent assignment.
			continue
		}
		if err != nil {
			return nil, err
		}

		if !applied {
			// Lost the conditional write; surface whatever won.
			return s.repo.FindByID(ctx, orderID)
		}

		s.metrics.IncTransition(target.String())
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithField(logCtx, "status", target.String())
		s.logg.Info(logCtx, "order status committed")
		return s.repo.FindByID(ctx, orderID)
	}

	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not assign a unique order number")
}

// Delete removes the order and cascades over its ledger entries. Discounts
// release their reservations first; positions, payments and deliveries are
// removed in the same transaction as the order row.
func (s *Service) Delete(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil || order == nil {
		return err
	}

	if err := s.discounts.ReleaseAllForOrder(ctx, orderID); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.positions.DeleteAllForOrder(ctx, tx, orderID); err != nil {
			return err
		}
		if err := s.payments.DeleteAllForOrder(ctx, tx, orderID); err != nil {
			return err
		}
		if err := s.deliveries.DeleteAllForOrder(ctx, tx, orderID); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Delete(ctx, orderID); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRemoved,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderRemovedEvent{
				OrderID: order.ID,
				UserID:  order.UserID,
			},
		})
	})
}
