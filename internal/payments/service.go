package payments

import (
	"context"
	"time"

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

// Service owns the payment ledger: one entry per (order, provider) pair,
// with its own status, context bag, pricing sheet and log.
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
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderPayment, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPayment, error) {
	return s.repo.FindAllByOrder(ctx, orderID)
}

func (s *Service) FindByOrderAndProvider(ctx context.Context, orderID uuid.UUID, providerID string) (*models.OrderPayment, error) {
	return s.repo.FindByOrderAndProvider(ctx, orderID, providerID)
}

// Create inserts a fresh ledger entry for the provider with a null (OPEN)
// status and empty context, calculation and log.
func (s *Service) Create(ctx context.Context, orderID uuid.UUID, providerID string) (*models.OrderPayment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if providerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider id required")
	}

	payment := &models.OrderPayment{
		OrderID:     orderID,
		ProviderID:  providerID,
		Context:     types.ContextMap{},
		Calculation: types.Calculation{},
		Log:         types.Log{},
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).Create(ctx, payment)
		if err != nil {
			return err
		}
		payment = created
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentCreated,
			AggregateType: enums.AggregateOrderPayment,
			AggregateID:   payment.ID,
			Data: payloads.OrderPaymentEvent{
				OrderID:    payment.OrderID,
				PaymentID:  payment.ID,
				ProviderID: payment.ProviderID,
				Status:     payment.EffectiveStatus(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// UpdateStatus appends a log entry and stamps PaidAt once, on the first
// transition into PAID. Unknown ids are a no-op returning nil.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus, info string) (*models.OrderPayment, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment status %q", status)
	}

	var payment *models.OrderPayment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByID(ctx, id)
		if err != nil || found == nil {
			return err
		}

		found.Status = &status
		found.Log = found.Log.Append(status.String(), info)
		if status == enums.PaymentStatusPaid && found.PaidAt == nil {
			now := time.Now().UTC()
			found.PaidAt = &now
		}
		if err := repo.Save(ctx, found); err != nil {
			return err
		}
		payment = found

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentUpdated,
			AggregateType: enums.AggregateOrderPayment,
			AggregateID:   payment.ID,
			Data: payloads.OrderPaymentEvent{
				OrderID:    payment.OrderID,
				PaymentID:  payment.ID,
				ProviderID: payment.ProviderID,
				Status:     status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// UpdateContext merges the patch into the stored context field by field.
// An empty patch is a no-op returning the current entry.
func (s *Service) UpdateContext(ctx context.Context, id uuid.UUID, patch types.ContextMap) (*models.OrderPayment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil || payment == nil {
		return payment, err
	}
	if len(patch) == 0 {
		return payment, nil
	}

	payment.Context = payment.Context.Merge(patch)
	if err := s.repo.Save(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// UpdateCalculation replaces the pricing sheet wholesale.
func (s *Service) UpdateCalculation(ctx context.Context, id uuid.UUID, calc types.Calculation) (*models.OrderPayment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil || payment == nil {
		return payment, err
	}

	payment.Calculation = calc
	if err := s.repo.Save(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// DeleteAllForOrder removes every ledger entry of the order. Used by the
// order cascade delete.
func (s *Service) DeleteAllForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.repo.WithTx(tx).DeleteAllForOrder(ctx, orderID)
}
