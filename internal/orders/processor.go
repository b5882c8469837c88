package orders

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/packlane/orderflow/pkg/config"
	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/enums"
	pkgerrors "github.com/packlane/orderflow/pkg/errors"
	"github.com/packlane/orderflow/pkg/logger"
	"github.com/packlane/orderflow/pkg/metrics"
	"github.com/packlane/orderflow/pkg/types"
)

// Lock operation identifiers. Two concurrent calls of the same operation on
// the same order serialize; different orders never contend.
const (
	lockOpCheckout = "checkout"
	lockOpConfirm  = "confirm"
	lockOpReject   = "reject"
)

// ProcessorConfig is injected at construction and replaces the runtime
// toggles that would otherwise live in a process-wide settings object.
type ProcessorConfig struct {
	// LockTimeout bounds lock acquisition for one engine call.
	LockTimeout time.Duration
	// UpdateUserOnCheckout writes the order's billing address and contact
	// back to the user as last-used values after a successful checkout.
	UpdateUserOnCheckout bool
	// ValidatePosition is an optional extra hook run per position during
	// checkout validation, after the built-in product checks.
	ValidatePosition func(ctx context.Context, position *models.OrderPosition, product *Product) error
}

// ProcessorConfigFromCheckout maps the environment toggles onto processor
// settings.
func ProcessorConfigFromCheckout(cfg config.CheckoutConfig, lockCfg config.LockConfig) ProcessorConfig {
	timeout := time.Duration(lockCfg.MaxAttempts) * lockCfg.RetryInterval * 2
	return ProcessorConfig{
		LockTimeout:          timeout,
		UpdateUserOnCheckout: cfg.UpdateUserOnCheckout,
	}
}

// Processor drives the order state machine: it validates checkout
// preconditions, computes the next status, performs the side effect required
// to enter it, and commits the transition, looping until no auto-advance
// remains.
type Processor struct {
	orders     *Service
	positions  positionLedger
	payments   paymentLedger
	deliveries deliveryLedger

	catalog          ProductCatalog
	paymentAdapters  PaymentAdapterResolver
	deliveryAdapters DeliveryAdapterResolver
	warehousing      Warehousing
	enrollments      Enrollments
	quotations       Quotations
	users            Users

	locks   Locker
	metrics *metrics.EngineMetrics
	cfg     ProcessorConfig
	logg    *logger.Logger
}

// The processor consumes the ledger services through the narrow slices it
// needs, which keeps its tests on lightweight fakes.
type positionLedger interface {
	FindActiveByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPosition, error)
}

type paymentLedger interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderPayment, error)
	UpdateContext(ctx context.Context, id uuid.UUID, patch types.ContextMap) (*models.OrderPayment, error)
}

type deliveryLedger interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderDelivery, error)
	UpdateContext(ctx context.Context, id uuid.UUID, patch types.ContextMap) (*models.OrderDelivery, error)
}

type ProcessorDeps struct {
	Orders           *Service
	Positions        positionLedger
	Payments         paymentLedger
	Deliveries       deliveryLedger
	Catalog          ProductCatalog
	PaymentAdapters  PaymentAdapterResolver
	DeliveryAdapters DeliveryAdapterResolver
	Warehousing      Warehousing
	Enrollments      Enrollments
	Quotations       Quotations
	Users            Users
	Locks            Locker
	Metrics          *metrics.EngineMetrics
	Logger           *logger.Logger
}

func NewProcessor(deps ProcessorDeps, cfg ProcessorConfig) *Processor {
	return &Processor{
		orders:           deps.Orders,
		positions:        deps.Positions,
		payments:         deps.Payments,
		deliveries:       deps.Deliveries,
		catalog:          deps.Catalog,
		paymentAdapters:  deps.PaymentAdapters,
		deliveryAdapters: deps.DeliveryAdapters,
		warehousing:      deps.Warehousing,
		enrollments:      deps.Enrollments,
		quotations:       deps.Quotations,
		users:            deps.Users,
		locks:            deps.Locks,
		metrics:          deps.Metrics,
		cfg:              cfg,
		logg:             deps.Logger,
	}
}

// Checkout transitions a cart into the state machine. Retrying a checkout on
// an order that already left the cart state is a no-op returning the order
// as-is.
func (p *Processor) Checkout(ctx context.Context, orderID uuid.UUID, input CheckoutInput) (*models.Order, error) {
	started := time.Now()
	defer func() {
		p.metrics.ObserveProcessDuration(lockOpCheckout, time.Since(started))
	}()
	ctx = p.logg.WithOperation(p.logg.WithOrderID(ctx, orderID.String()), lockOpCheckout)

	lease, err := p.locks.Acquire(ctx, orderID.String(), lockOpCheckout, p.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lease.Release(ctx); releaseErr != nil {
			p.logg.Warn(ctx, "order lock release failed")
		}
	}()

	if _, err := p.orders.UpdateContext(ctx, orderID, input.OrderContext); err != nil {
		return nil, err
	}

	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", orderID)
	}
	if !order.IsCart() {
		return order, nil
	}

	if err := p.validateCheckout(ctx, order); err != nil {
		return nil, err
	}

	order, err = p.process(ctx, order, input, nil)
	if err != nil {
		return nil, err
	}

	if p.cfg.UpdateUserOnCheckout {
		p.writeBackUser(ctx, order)
	}
	return order, nil
}

// Confirm forces the CONFIRMED transition on a PENDING order and lets the
// cascade auto-advance from there.
func (p *Processor) Confirm(ctx context.Context, orderID uuid.UUID, input CheckoutInput) (*models.Order, error) {
	started := time.Now()
	defer func() {
		p.metrics.ObserveProcessDuration(lockOpConfirm, time.Since(started))
	}()
	ctx = p.logg.WithOperation(p.logg.WithOrderID(ctx, orderID.String()), lockOpConfirm)

	lease, err := p.locks.Acquire(ctx, orderID.String(), lockOpConfirm, p.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lease.Release(ctx); releaseErr != nil {
			p.logg.Warn(ctx, "order lock release failed")
		}
	}()

	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", orderID)
	}
	if !order.StatusIs(enums.OrderStatusPending) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be confirmed")
	}

	forced := enums.OrderStatusConfirmed
	return p.process(ctx, order, input, &forced)
}

// Reject forces the REJECTED transition on a PENDING order, cancelling the
// active payment first. No auto-advance follows.
func (p *Processor) Reject(ctx context.Context, orderID uuid.UUID, info string) (*models.Order, error) {
	started := time.Now()
	defer func() {
		p.metrics.ObserveProcessDuration(lockOpReject, time.Since(started))
	}()
	ctx = p.logg.WithOperation(p.logg.WithOrderID(ctx, orderID.String()), lockOpReject)

	lease, err := p.locks.Acquire(ctx, orderID.String(), lockOpReject, p.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lease.Release(ctx); releaseErr != nil {
			p.logg.Warn(ctx, "order lock release failed")
		}
	}()

	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", orderID)
	}
	if !order.StatusIs(enums.OrderStatusPending) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be rejected")
	}

	forced := enums.OrderStatusRejected
	return p.process(ctx, order, CheckoutInput{}, &forced, info)
}

// validateCheckout runs the precondition gate. All failures are computed;
// the first is surfaced and the rest logged at warn level.
func (p *Processor) validateCheckout(ctx context.Context, order *models.Order) error {
	var failures []error

	if order.Contact == nil {
		failures = append(failures, pkgerrors.New(pkgerrors.CodeValidation, "no contact provided"))
	}
	if order.BillingAddress == nil {
		failures = append(failures, pkgerrors.New(pkgerrors.CodeValidation, "no billing address provided"))
	}
	if order.DeliveryID == nil {
		failures = append(failures, pkgerrors.New(pkgerrors.CodeValidation, "no delivery provider selected"))
	}
	if order.PaymentID == nil {
		failures = append(failures, pkgerrors.New(pkgerrors.CodeValidation, "no payment provider selected"))
	}

	active, err := p.positions.FindActiveByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		failures = append(failures, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
	}

	for i := range active {
		position := &active[i]
		if err := p.validatePosition(ctx, position); err != nil {
			failures = append(failures, err)
		}
	}

	if len(failures) == 0 {
		return nil
	}
	for _, failure := range failures[1:] {
		p.logg.Warn(p.logg.WithField(ctx, "reason", failure.Error()), "additional checkout precondition failed")
	}
	first := failures[0]
	if typed := pkgerrors.As(first); typed != nil {
		p.metrics.IncCheckoutFailure(typed.Message())
	}
	return first
}

func (p *Processor) validatePosition(ctx context.Context, position *models.OrderPosition) error {
	product, err := p.catalog.FindProduct(ctx, position.ProductID)
	if err != nil {
		return err
	}
	if product == nil || !product.Active {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "product %s is not available", position.ProductID)
	}
	if product.MinQuantity > 0 && position.Quantity < product.MinQuantity {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "product %s requires at least %d items", position.ProductID, product.MinQuantity)
	}
	if product.MaxQuantity > 0 && position.Quantity > product.MaxQuantity {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "product %s allows at most %d items", position.ProductID, product.MaxQuantity)
	}

	if position.QuotationID != nil {
		quotation, err := p.quotations.FindQuotation(ctx, *position.QuotationID)
		if err != nil {
			return err
		}
		valid := false
		if quotation != nil {
			valid, err = p.quotations.IsProposalValid(ctx, quotation)
			if err != nil {
				return err
			}
		}
		if !valid {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "quotation %s is no longer valid", *position.QuotationID)
		}
	}

	if p.cfg.ValidatePosition != nil {
		return p.cfg.ValidatePosition(ctx, position, product)
	}
	return nil
}

// process runs one cascade pass. The next status is recomputed after each
// side effect so a successful charge can unblock confirmation, and a
// confirmation can cascade straight to fulfillment, within the same call.
// CONFIRMED is persisted before the delivery/tokenization/enrollment/
// quotation cascade so downstream systems observe a confirmed order with an
// assigned number.
func (p *Processor) process(ctx context.Context, order *models.Order, input CheckoutInput, forced *enums.OrderStatus, infos ...string) (*models.Order, error) {
	info := ""
	if len(infos) > 0 {
		info = infos[0]
	}

	payment, delivery, err := p.activeLedgerEntries(ctx, order)
	if err != nil {
		return nil, err
	}
	if payment != nil && len(input.PaymentContext) > 0 {
		payment, err = p.payments.UpdateContext(ctx, payment.ID, input.PaymentContext)
		if err != nil {
			return nil, err
		}
	}
	if delivery != nil && len(input.DeliveryContext) > 0 {
		delivery, err = p.deliveries.UpdateContext(ctx, delivery.ID, input.DeliveryContext)
		if err != nil {
			return nil, err
		}
	}

	next := forced
	if next == nil {
		next, err = p.findNextStatus(ctx, order.Status, payment, delivery)
		if err != nil {
			return nil, err
		}
	}
	if next == nil {
		return order, nil
	}

	if *next == enums.OrderStatusPending {
		if err := p.chargePayment(ctx, order, payment, input.PaymentContext); err != nil {
			return nil, err
		}
		// A successful charge can unblock confirmation in the same pass.
		advanced, err := p.findNextStatus(ctx, next, payment, delivery)
		if err != nil {
			return nil, err
		}
		if advanced != nil {
			next = advanced
		}
	}

	if *next == enums.OrderStatusRejected {
		if err := p.cancelPayment(ctx, order, payment, input.PaymentContext); err != nil {
			return nil, err
		}
	}

	if *next == enums.OrderStatusConfirmed && !order.StatusIs(enums.OrderStatusConfirmed) {
		order, err = p.runConfirmationCascade(ctx, order, payment, delivery, input, info)
		if err != nil {
			return nil, err
		}
		advanced, err := p.findNextStatus(ctx, order.Status, payment, delivery)
		if err != nil {
			return nil, err
		}
		if advanced == nil {
			return order, nil
		}
		next = advanced
	}

	return p.orders.UpdateStatus(ctx, order.ID, *next, info)
}

// findNextStatus computes the auto-advance target from the given status
// position, consulting the adapters' blocking predicates. A nil result means
// no further auto-advance.
func (p *Processor) findNextStatus(ctx context.Context, current *enums.OrderStatus, payment *models.OrderPayment, delivery *models.OrderDelivery) (*enums.OrderStatus, error) {
	if current == nil {
		next := enums.OrderStatusPending
		return &next, nil
	}

	switch *current {
	case enums.OrderStatusPending:
		blocked, err := p.confirmationBlocked(ctx, payment, delivery)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, nil
		}
		next := enums.OrderStatusConfirmed
		return &next, nil

	case enums.OrderStatusConfirmed:
		blocked, err := p.fulfillmentBlocked(ctx, payment, delivery)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, nil
		}
		next := enums.OrderStatusFulfilled
		return &next, nil
	}

	// REJECTED and FULFILLED are terminal for auto-advance.
	return nil, nil
}

func (p *Processor) confirmationBlocked(ctx context.Context, payment *models.OrderPayment, delivery *models.OrderDelivery) (bool, error) {
	if payment != nil {
		adapter, err := p.paymentAdapters.PaymentAdapter(payment.ProviderID)
		if err != nil {
			return false, err
		}
		blocking, err := adapter.IsBlockingOrderConfirmation(ctx, payment)
		if err != nil || blocking {
			return blocking, err
		}
	}
	if delivery != nil {
		adapter, err := p.deliveryAdapters.DeliveryAdapter(delivery.ProviderID)
		if err != nil {
			return false, err
		}
		return adapter.IsBlockingOrderConfirmation(ctx, delivery)
	}
	return false, nil
}

func (p *Processor) fulfillmentBlocked(ctx context.Context, payment *models.OrderPayment, delivery *models.OrderDelivery) (bool, error) {
	if payment != nil {
		adapter, err := p.paymentAdapters.PaymentAdapter(payment.ProviderID)
		if err != nil {
			return false, err
		}
		blocking, err := adapter.IsBlockingOrderFulfillment(ctx, payment)
		if err != nil || blocking {
			return blocking, err
		}
	}
	if delivery != nil {
		adapter, err := p.deliveryAdapters.DeliveryAdapter(delivery.ProviderID)
		if err != nil {
			return false, err
		}
		return adapter.IsBlockingOrderFulfillment(ctx, delivery)
	}
	return false, nil
}

func (p *Processor) chargePayment(ctx context.Context, order *models.Order, payment *models.OrderPayment, paymentContext types.ContextMap) error {
	if payment == nil {
		return nil
	}
	adapter, err := p.paymentAdapters.PaymentAdapter(payment.ProviderID)
	if err != nil {
		return err
	}
	tc := TransactionContext{UserID: order.UserID, Context: paymentContext}
	if err := adapter.Charge(ctx, payment, tc); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "charging payment")
	}
	return nil
}

func (p *Processor) cancelPayment(ctx context.Context, order *models.Order, payment *models.OrderPayment, paymentContext types.ContextMap) error {
	if payment == nil {
		return nil
	}
	adapter, err := p.paymentAdapters.PaymentAdapter(payment.ProviderID)
	if err != nil {
		return err
	}
	tc := TransactionContext{UserID: order.UserID, Context: paymentContext}
	if err := adapter.Cancel(ctx, payment, tc); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "cancelling payment")
	}
	return nil
}

// runConfirmationCascade confirms the payment, commits CONFIRMED, then runs
// the post-confirmation side effects: delivery dispatch, tokenization,
// enrollment creation and quotation fulfillment.
func (p *Processor) runConfirmationCascade(ctx context.Context, order *models.Order, payment *models.OrderPayment, delivery *models.OrderDelivery, input CheckoutInput, info string) (*models.Order, error) {
	if payment != nil {
		adapter, err := p.paymentAdapters.PaymentAdapter(payment.ProviderID)
		if err != nil {
			return nil, err
		}
		tc := TransactionContext{UserID: order.UserID, Context: input.PaymentContext}
		if err := adapter.Confirm(ctx, payment, tc); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "confirming payment")
		}
	}

	order, err := p.orders.UpdateStatus(ctx, order.ID, enums.OrderStatusConfirmed, info)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order vanished during confirmation")
	}

	if delivery != nil {
		adapter, err := p.deliveryAdapters.DeliveryAdapter(delivery.ProviderID)
		if err != nil {
			return nil, err
		}
		if err := adapter.Send(ctx, delivery, order, input.DeliveryContext); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "dispatching delivery")
		}
	}

	active, err := p.positions.FindActiveByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if err := p.tokenizePositions(ctx, order, active); err != nil {
		return nil, err
	}
	if err := p.enrollPositions(ctx, order, active, input.OrderContext); err != nil {
		return nil, err
	}
	p.fulfillQuotations(ctx, order, active)

	return order, nil
}

func (p *Processor) tokenizePositions(ctx context.Context, order *models.Order, active []models.OrderPosition) error {
	if p.warehousing == nil || p.catalog == nil {
		return nil
	}
	var items []models.OrderPosition
	for _, position := range active {
		product, err := p.catalog.FindProduct(ctx, position.ProductID)
		if err != nil {
			return err
		}
		if product != nil && product.Type == enums.ProductTypeTokenized {
			items = append(items, position)
		}
	}
	if len(items) == 0 {
		return nil
	}
	if err := p.warehousing.TokenizeItems(ctx, order, items); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "tokenizing items")
	}
	return nil
}

// enrollPositions creates enrollments for plan positions unless the order
// itself originated from an enrollment.
func (p *Processor) enrollPositions(ctx context.Context, order *models.Order, active []models.OrderPosition, orderContext types.ContextMap) error {
	if p.enrollments == nil || p.catalog == nil {
		return nil
	}
	if order.Context.GetString("enrollment_id") != "" {
		return nil
	}
	var items []models.OrderPosition
	for _, position := range active {
		product, err := p.catalog.FindProduct(ctx, position.ProductID)
		if err != nil {
			return err
		}
		if product != nil && product.Type == enums.ProductTypePlan {
			items = append(items, position)
		}
	}
	if len(items) == 0 {
		return nil
	}
	if err := p.enrollments.CreateFromCheckout(ctx, order, items, orderContext); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "creating enrollment")
	}
	return nil
}

// fulfillQuotations fans out per position. Fulfillment is idempotent on the
// quotation side, so failures are logged and not propagated.
func (p *Processor) fulfillQuotations(ctx context.Context, order *models.Order, active []models.OrderPosition) {
	if p.quotations == nil {
		return
	}
	var wg sync.WaitGroup
	for _, position := range active {
		if position.QuotationID == nil {
			continue
		}
		wg.Add(1)
		go func(quotationID, positionID uuid.UUID) {
			defer wg.Done()
			if err := p.quotations.FulfillQuotation(ctx, quotationID, order.ID, positionID); err != nil {
				logCtx := p.logg.WithField(ctx, "quotation_id", quotationID.String())
				p.logg.Error(logCtx, "quotation fulfillment failed", err)
			}
		}(*position.QuotationID, position.ID)
	}
	wg.Wait()
}

// writeBackUser records the checked-out address and contact as the user's
// last used values. Best effort.
func (p *Processor) writeBackUser(ctx context.Context, order *models.Order) {
	if p.users == nil || order == nil {
		return
	}
	if order.BillingAddress != nil {
		if err := p.users.UpdateLastBillingAddress(ctx, order.UserID, *order.BillingAddress); err != nil {
			p.logg.Warn(ctx, "billing address write-back failed")
		}
	}
	if order.Contact != nil {
		if err := p.users.UpdateLastContact(ctx, order.UserID, *order.Contact); err != nil {
			p.logg.Warn(ctx, "contact write-back failed")
		}
	}
}

func (p *Processor) activeLedgerEntries(ctx context.Context, order *models.Order) (*models.OrderPayment, *models.OrderDelivery, error) {
	var payment *models.OrderPayment
	var delivery *models.OrderDelivery
	var err error
	if order.PaymentID != nil {
		payment, err = p.payments.FindByID(ctx, *order.PaymentID)
		if err != nil {
			return nil, nil, err
		}
	}
	if order.DeliveryID != nil {
		delivery, err = p.deliveries.FindByID(ctx, *order.DeliveryID)
		if err != nil {
			return nil, nil, err
		}
	}
	return payment, delivery, nil
}
