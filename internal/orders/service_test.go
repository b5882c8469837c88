package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packlane/orderflow/internal/positions"
	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/enums"
	pkgerrors "github.com/packlane/orderflow/pkg/errors"
	"github.com/packlane/orderflow/pkg/types"
)

func TestCreateOrderStartsAsCart(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	order, err := f.orders.Create(ctx, CreateOrderInput{
		UserID:       uuid.New(),
		CurrencyCode: "EUR",
		CountryCode:  "DE",
	})
	require.NoError(t, err)

	assert.True(t, order.IsCart())
	assert.Nil(t, order.OrderNumber)
	assert.Empty(t, order.Log)
}

func TestCreateOrderValidatesAddress(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.orders.Create(ctx, CreateOrderInput{
		UserID:         uuid.New(),
		CurrencyCode:   "EUR",
		BillingAddress: &types.Address{City: "Berlin"},
	})
	require.Error(t, err)
}

func TestUpdateStatusBackfillsMilestones(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := f.newCheckoutReadyOrder(t)

	result, err := f.orders.UpdateStatus(ctx, order.ID, enums.OrderStatusFulfilled, "manual")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, enums.OrderStatusFulfilled, *result.Status)
	assert.NotNil(t, result.OrderedAt)
	assert.NotNil(t, result.ConfirmedAt)
	assert.NotNil(t, result.FulfilledAt)
	assert.Nil(t, result.RejectedAt)
	require.NotNil(t, result.OrderNumber)

	assert.Equal(t, 1, result.Log.CountStatus(enums.OrderStatusPending.String()))
	assert.Equal(t, 1, result.Log.CountStatus(enums.OrderStatusConfirmed.String()))
	assert.Equal(t, 1, result.Log.CountStatus(enums.OrderStatusFulfilled.String()))
	assert.Equal(t, enums.OrderStatusFulfilled.String(), result.Log.LastStatus())
}

func TestUpdateStatusRejectedBackfillsOrderedOnly(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := f.newCheckoutReadyOrder(t)

	result, err := f.orders.UpdateStatus(ctx, order.ID, enums.OrderStatusRejected, "fraud check")
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusRejected, *result.Status)
	assert.NotNil(t, result.OrderedAt)
	assert.NotNil(t, result.RejectedAt)
	assert.Nil(t, result.ConfirmedAt)
	assert.Nil(t, result.FulfilledAt)
}

func TestUpdateStatusDuplicateIsNoOp(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := f.newCheckoutReadyOrder(t)

	first, err := f.orders.UpdateStatus(ctx, order.ID, enums.OrderStatusConfirmed, "")
	require.NoError(t, err)
	second, err := f.orders.UpdateStatus(ctx, order.ID, enums.OrderStatusConfirmed, "")
	require.NoError(t, err)

	assert.Equal(t, first.ConfirmedAt.Unix(), second.ConfirmedAt.Unix())
	assert.Equal(t, 1, second.Log.CountStatus(enums.OrderStatusConfirmed.String()))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventOrderConfirmed))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventOrderCheckout))
}

func TestUpdateStatusRaceSingleWinner(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := f.newCheckoutReadyOrder(t)

	_, err := f.orders.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, "")
	require.NoError(t, err)

	// The conditional write is the race arbiter: the second direct attempt
	// against the same target finds status already set and does not apply.
	repo := NewRepository(f.conn)
	applied, err := repo.UpdateStatusFields(ctx, order.ID, enums.OrderStatusConfirmed, map[string]any{
		"status": enums.OrderStatusConfirmed.String(),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.UpdateStatusFields(ctx, order.ID, enums.OrderStatusConfirmed, map[string]any{
		"status": enums.OrderStatusConfirmed.String(),
	})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	result, err := f.orders.UpdateStatus(ctx, uuid.New(), enums.OrderStatusPending, "")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestGuardedUpdatesStopAfterConfirmation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := f.newCheckoutReadyOrder(t)

	updated, err := f.orders.UpdateContext(ctx, order.ID, types.ContextMap{"gift": true})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, true, updated.Context["gift"])

	_, err = f.orders.UpdateStatus(ctx, order.ID, enums.OrderStatusConfirmed, "")
	require.NoError(t, err)

	blocked, err := f.orders.UpdateContext(ctx, order.ID, types.ContextMap{"gift": false})
	require.NoError(t, err)
	assert.Nil(t, blocked)

	blockedAddr, err := f.orders.UpdateBillingAddress(ctx, order.ID, testAddress())
	require.NoError(t, err)
	assert.Nil(t, blockedAddr)
}

func TestSetPaymentProviderIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	order, err := f.orders.Create(ctx, CreateOrderInput{
		UserID:       uuid.New(),
		CurrencyCode: "EUR",
	})
	require.NoError(t, err)

	first, err := f.orders.SetPaymentProvider(ctx, order.ID, "test-psp")
	require.NoError(t, err)
	require.NotNil(t, first.PaymentID)

	updatedEvents := f.countEvents(t, enums.EventOrderUpdated)

	second, err := f.orders.SetPaymentProvider(ctx, order.ID, "test-psp")
	require.NoError(t, err)
	assert.Equal(t, *first.PaymentID, *second.PaymentID)
	assert.Equal(t, updatedEvents, f.countEvents(t, enums.EventOrderUpdated))

	var count int64
	require.NoError(t, f.conn.Model(&models.OrderPayment{}).
		Where("order_id = ?", order.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeleteCascades(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := f.newCheckoutReadyOrder(t)

	require.NoError(t, f.orders.Delete(ctx, order.ID))

	reloaded, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded)

	for _, model := range []any{
		&models.OrderPosition{},
		&models.OrderPayment{},
		&models.OrderDelivery{},
		&models.OrderDiscount{},
	} {
		var count int64
		require.NoError(t, f.conn.Model(model).
			Where("order_id = ?", order.ID).
			Count(&count).Error)
		assert.EqualValues(t, 0, count)
	}
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventOrderRemoved))
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := f.orders.Create(ctx, CreateOrderInput{
			UserID:       userID,
			CurrencyCode: "EUR",
		})
		require.NoError(t, err)
	}

	page, cursor, err := f.orders.List(ctx, ListParams{Pagination: paginationParams(2)})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	require.NotEmpty(t, cursor)

	rest, _, err := f.orders.List(ctx, ListParams{Pagination: paginationParams(2, cursor)})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestCreateOrderWithPresetNumber(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	number := "CUSTOM-1"
	order, err := f.orders.Create(ctx, CreateOrderInput{
		UserID:       uuid.New(),
		CurrencyCode: "EUR",
		OrderNumber:  &number,
	})
	require.NoError(t, err)
	require.NotNil(t, order.OrderNumber)
	assert.Equal(t, number, *order.OrderNumber)

	// Checkout keeps the preset number instead of generating one.
	placed, err := f.orders.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, "")
	require.NoError(t, err)
	require.NotNil(t, placed.OrderNumber)
	assert.Equal(t, number, *placed.OrderNumber)

	_, err = f.orders.Create(ctx, CreateOrderInput{
		UserID:       uuid.New(),
		CurrencyCode: "EUR",
		OrderNumber:  &number,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestUpdateStatusLogSurvivesReload(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := f.newCheckoutReadyOrder(t)

	_, err := f.orders.UpdateStatus(ctx, order.ID, enums.OrderStatusConfirmed, "auto")
	require.NoError(t, err)

	reloaded, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)

	require.Len(t, reloaded.Log, 2)
	assert.Equal(t, enums.OrderStatusPending.String(), reloaded.Log[0].Status)
	assert.Equal(t, enums.OrderStatusConfirmed.String(), reloaded.Log[1].Status)
	assert.Equal(t, "auto", reloaded.Log[1].Info)
}

func TestListFiltersByUser(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	scoped := uuid.New()
	other := uuid.New()
	for _, userID := range []uuid.UUID{scoped, scoped, other} {
		_, err := f.orders.Create(ctx, CreateOrderInput{
			UserID:       userID,
			CurrencyCode: "EUR",
		})
		require.NoError(t, err)
	}

	rows, _, err := f.orders.List(ctx, ListParams{
		UserID:     &scoped,
		Pagination: paginationParams(10),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, scoped, row.UserID)
	}
}

func TestPositionDedupAcrossServiceCalls(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	order, err := f.orders.Create(ctx, CreateOrderInput{
		UserID:       uuid.New(),
		CurrencyCode: "EUR",
	})
	require.NoError(t, err)

	productID := uuid.New()
	cfg := types.Configuration{"color": "red"}

	_, err = f.positions.AddProductItem(ctx, positions.AddProductItemInput{
		OrderID:       order.ID,
		ProductID:     productID,
		Quantity:      2,
		Configuration: cfg,
	})
	require.NoError(t, err)

	position, err := f.positions.AddProductItem(ctx, positions.AddProductItemInput{
		OrderID:       order.ID,
		ProductID:     productID,
		Quantity:      3,
		Configuration: cfg,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, position.Quantity)

	all, err := f.positions.FindAllByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
