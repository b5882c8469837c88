package deliveries

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

// Service owns the delivery ledger: one entry per (order, provider) pair,
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
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderDelivery, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindAllByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderDelivery, error) {
	return s.repo.FindAllByOrder(ctx, orderID)
}

func (s *Service) FindByOrderAndProvider(ctx context.Context, orderID uuid.UUID, providerID string) (*models.OrderDelivery, error) {
	return s.repo.FindByOrderAndProvider(ctx, orderID, providerID)
}

// Create inserts a fresh ledger entry for the provider with a null (OPEN)
// status and empty context, calculation and log.
func (s *Service) Create(ctx context.Context, orderID uuid.UUID, providerID string) (*models.OrderDelivery, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if providerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider id required")
	}

	delivery := &models.OrderDelivery{
		OrderID:     orderID,
		ProviderID:  providerID,
		Context:     types.ContextMap{},
		Calculation: types.Calculation{},
		Log:         types.Log{},
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).Create(ctx, delivery)
		if err != nil {
			return err
		}
		delivery = created
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDeliveryCreated,
			AggregateType: enums.AggregateOrderDelivery,
			AggregateID:   delivery.ID,
			Data: payloads.OrderDeliveryEvent{
				OrderID:    delivery.OrderID,
				DeliveryID: delivery.ID,
				ProviderID: delivery.ProviderID,
				Status:     delivery.EffectiveStatus(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// UpdateStatus appends a log entry and stamps DeliveredAt once, on the first
// transition into DELIVERED. Unknown ids are a no-op returning nil.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.DeliveryStatus, info string) (*models.OrderDelivery, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid delivery status %q", status)
	}

	var delivery *models.OrderDelivery
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByID(ctx, id)
		if err != nil || found == nil {
			return err
		}

		found.Status = &status
		found.Log = found.Log.Append(status.String(), info)
		if status == enums.DeliveryStatusDelivered && found.DeliveredAt == nil {
			now := time.Now().UTC()
			found.DeliveredAt = &now
		}
		if err := repo.Save(ctx, found); err != nil {
			return err
		}
		delivery = found

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDeliveryUpdated,
			AggregateType: enums.AggregateOrderDelivery,
			AggregateID:   delivery.ID,
			Data: payloads.OrderDeliveryEvent{
				OrderID:    delivery.OrderID,
				DeliveryID: delivery.ID,
				ProviderID: delivery.ProviderID,
				Status:     status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// UpdateContext merges the patch into the stored context field by field.
// An empty patch is a no-op returning the current entry.
func (s *Service) UpdateContext(ctx context.Context, id uuid.UUID, patch types.ContextMap) (*models.OrderDelivery, error) {
	delivery, err := s.repo.FindByID(ctx, id)
	if err != nil || delivery == nil {
		return delivery, err
	}
	if len(patch) == 0 {
		return delivery, nil
	}

	delivery.Context = delivery.Context.Merge(patch)
	if err := s.repo.Save(ctx, delivery); err != nil {
		return nil, err
	}
	return delivery, nil
}

// UpdateCalculation replaces the pricing sheet wholesale.
func (s *Service) UpdateCalculation(ctx context.Context, id uuid.UUID, calc types.Calculation) (*models.OrderDelivery, error) {
	delivery, err := s.repo.FindByID(ctx, id)
	if err != nil || delivery == nil {
		return delivery, err
	}

	delivery.Calculation = calc
	if err := s.repo.Save(ctx, delivery); err != nil {
		return nil, err
	}
	return delivery, nil
}

// DeleteAllForOrder removes every ledger entry of the order. Used by the
// order cascade delete.
func (s *Service) DeleteAllForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.repo.WithTx(tx).DeleteAllForOrder(ctx, orderID)
}
