package orders

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/internal/deliveries"
	"github.com/packlane/orderflow/internal/discounts"
	"github.com/packlane/orderflow/internal/payments"
	"github.com/packlane/orderflow/internal/positions"
	"github.com/packlane/orderflow/pkg/config"
	"github.com/packlane/orderflow/pkg/db"
	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/enums"
	"github.com/packlane/orderflow/pkg/lock"
	"github.com/packlane/orderflow/pkg/logger"
	"github.com/packlane/orderflow/pkg/outbox"
	"github.com/packlane/orderflow/pkg/pagination"
	"github.com/packlane/orderflow/pkg/types"
)

func paginationParams(limit int, cursor ...string) pagination.Params {
	params := pagination.Params{Limit: limit}
	if len(cursor) > 0 {
		params.Cursor = cursor[0]
	}
	return params
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&models.Order{},
		&models.OrderPosition{},
		&models.OrderPayment{},
		&models.OrderDelivery{},
		&models.OrderDiscount{},
		&models.OutboxEvent{},
	))
	return conn
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type fakeCatalog struct {
	products map[uuid.UUID]*Product
}

func (f *fakeCatalog) FindProduct(_ context.Context, id uuid.UUID) (*Product, error) {
	return f.products[id], nil
}

func (f *fakeCatalog) add(product *Product) {
	f.products[product.ID] = product
}

type fakePaymentAdapter struct {
	chargeCalls  int
	confirmCalls int
	cancelCalls  int

	blockConfirmation bool
	blockFulfillment  bool
	chargeErr         error
}

func (f *fakePaymentAdapter) Charge(_ context.Context, _ *models.OrderPayment, _ TransactionContext) error {
	f.chargeCalls++
	return f.chargeErr
}

func (f *fakePaymentAdapter) Confirm(_ context.Context, _ *models.OrderPayment, _ TransactionContext) error {
	f.confirmCalls++
	return nil
}

func (f *fakePaymentAdapter) Cancel(_ context.Context, _ *models.OrderPayment, _ TransactionContext) error {
	f.cancelCalls++
	return nil
}

func (f *fakePaymentAdapter) IsBlockingOrderConfirmation(_ context.Context, _ *models.OrderPayment) (bool, error) {
	return f.blockConfirmation, nil
}

func (f *fakePaymentAdapter) IsBlockingOrderFulfillment(_ context.Context, _ *models.OrderPayment) (bool, error) {
	return f.blockFulfillment, nil
}

type fakePaymentResolver struct {
	adapter PaymentAdapter
}

func (f fakePaymentResolver) PaymentAdapter(string) (PaymentAdapter, error) {
	return f.adapter, nil
}

type fakeDeliveryAdapter struct {
	sendCalls int

	blockConfirmation bool
	blockFulfillment  bool
}

func (f *fakeDeliveryAdapter) Send(_ context.Context, _ *models.OrderDelivery, _ *models.Order, _ types.ContextMap) error {
	f.sendCalls++
	return nil
}

func (f *fakeDeliveryAdapter) IsBlockingOrderConfirmation(_ context.Context, _ *models.OrderDelivery) (bool, error) {
	return f.blockConfirmation, nil
}

func (f *fakeDeliveryAdapter) IsBlockingOrderFulfillment(_ context.Context, _ *models.OrderDelivery) (bool, error) {
	return f.blockFulfillment, nil
}

type fakeDeliveryResolver struct {
	adapter DeliveryAdapter
}

func (f fakeDeliveryResolver) DeliveryAdapter(string) (DeliveryAdapter, error) {
	return f.adapter, nil
}

type fakeLocker struct{}

func (fakeLocker) Acquire(context.Context, string, string, time.Duration) (*lock.Lease, error) {
	return &lock.Lease{}, nil
}

type fakeQuotations struct {
	valid        bool
	fulfillCalls int
}

func (f *fakeQuotations) FindQuotation(_ context.Context, id uuid.UUID) (*Quotation, error) {
	return &Quotation{ID: id}, nil
}

func (f *fakeQuotations) IsProposalValid(context.Context, *Quotation) (bool, error) {
	return f.valid, nil
}

func (f *fakeQuotations) FulfillQuotation(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error {
	f.fulfillCalls++
	return nil
}

type engineFixture struct {
	conn *gorm.DB

	orders     *Service
	processor  *Processor
	positions  *positions.Service
	payments   *payments.Service
	deliveries *deliveries.Service

	catalog         *fakeCatalog
	paymentAdapter  *fakePaymentAdapter
	deliveryAdapter *fakeDeliveryAdapter
	quotations      *fakeQuotations
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	conn := newTestDB(t)
	client := db.FromConn(conn)
	logg := newTestLogger()
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	posSvc := positions.NewService(positions.NewRepository(conn), client, events, logg)
	paySvc := payments.NewService(payments.NewRepository(conn), client, events, logg)
	delSvc := deliveries.NewService(deliveries.NewRepository(conn), client, events, logg)
	director := discounts.NewDirector(nil)
	discSvc := discounts.NewService(discounts.NewRepository(conn), director, client, events, logg)

	orderSvc := NewService(
		NewRepository(conn), client, events,
		posSvc, paySvc, delSvc, discSvc,
		nil,
		config.CheckoutConfig{OrderNumberLength: 6},
		logg,
	)

	catalog := &fakeCatalog{products: map[uuid.UUID]*Product{}}
	paymentAdapter := &fakePaymentAdapter{}
	deliveryAdapter := &fakeDeliveryAdapter{}
	quotations := &fakeQuotations{valid: true}

	processor := NewProcessor(ProcessorDeps{
		Orders:           orderSvc,
		Positions:        posSvc,
		Payments:         paySvc,
		Deliveries:       delSvc,
		Catalog:          catalog,
		PaymentAdapters:  fakePaymentResolver{adapter: paymentAdapter},
		DeliveryAdapters: fakeDeliveryResolver{adapter: deliveryAdapter},
		Quotations:       quotations,
		Locks:            fakeLocker{},
		Logger:           logg,
	}, ProcessorConfig{LockTimeout: time.Second})

	return &engineFixture{
		conn:            conn,
		orders:          orderSvc,
		processor:       processor,
		positions:       posSvc,
		payments:        paySvc,
		deliveries:      delSvc,
		catalog:         catalog,
		paymentAdapter:  paymentAdapter,
		deliveryAdapter: deliveryAdapter,
		quotations:      quotations,
	}
}

func testAddress() types.Address {
	return types.Address{
		FirstName:   "Jana",
		LastName:    "Vogel",
		AddressLine: "Musterstrasse 1",
		PostalCode:  "10115",
		City:        "Berlin",
		CountryCode: "DE",
	}
}

func testContact() types.Contact {
	return types.Contact{
		EmailAddress: "jana@example.com",
	}
}

// newCheckoutReadyOrder seeds a cart passing every checkout precondition:
// address and contact set, one active position, payment and delivery
// providers attached.
func (f *engineFixture) newCheckoutReadyOrder(t *testing.T) *models.Order {
	t.Helper()
	ctx := context.Background()

	address := testAddress()
	contact := testContact()
	order, err := f.orders.Create(ctx, CreateOrderInput{
		UserID:         uuid.New(),
		CurrencyCode:   "EUR",
		CountryCode:    "DE",
		BillingAddress: &address,
		Contact:        &contact,
	})
	require.NoError(t, err)

	product := &Product{ID: uuid.New(), Type: enums.ProductTypeSimple, Active: true}
	f.catalog.add(product)

	_, err = f.positions.AddProductItem(ctx, positions.AddProductItemInput{
		OrderID:   order.ID,
		ProductID: product.ID,
		Quantity:  2,
	})
	require.NoError(t, err)

	_, err = f.orders.SetPaymentProvider(ctx, order.ID, "test-psp")
	require.NoError(t, err)
	order, err = f.orders.SetDeliveryProvider(ctx, order.ID, "test-carrier")
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func (f *engineFixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", eventType).
		Count(&count).Error)
	return count
}
