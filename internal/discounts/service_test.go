package discounts

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/db"
	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/enums"
	pkgerrors "github.com/packlane/orderflow/pkg/errors"
	"github.com/packlane/orderflow/pkg/logger"
	"github.com/packlane/orderflow/pkg/outbox"
	"github.com/packlane/orderflow/pkg/types"
)

type fakeAdapter struct {
	key string

	reserveCalls int
	releaseCalls int

	reserveErr  error
	systemValid bool
}

func (f *fakeAdapter) Key() string { return f.key }

func (f *fakeAdapter) Reserve(_ context.Context, _ *models.OrderDiscount, _ *models.Order) (types.ContextMap, error) {
	f.reserveCalls++
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	return types.ContextMap{"token": "reserved"}, nil
}

func (f *fakeAdapter) Release(context.Context, *models.OrderDiscount) error {
	f.releaseCalls++
	return nil
}

func (f *fakeAdapter) IsValidForSystemTriggering(context.Context, *models.Order) (bool, error) {
	return f.systemValid, nil
}

func (f *fakeAdapter) IsValidForCodeTriggering(_ context.Context, code string) (bool, error) {
	return code != "", nil
}

func (f *fakeAdapter) CalculationLines(context.Context, *models.OrderDiscount, *models.Order) (types.Calculation, error) {
	return nil, nil
}

type discountFixture struct {
	svc     *Service
	repo    Repository
	conn    *gorm.DB
	adapter *fakeAdapter
}

func newDiscountFixture(t *testing.T, staticCodes map[string]string) *discountFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.OrderDiscount{},
		&models.OutboxEvent{},
	))

	adapter := &fakeAdapter{key: "test-discount"}
	director := NewDirector(staticCodes)
	director.Register(adapter)

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	repo := NewRepository(conn)
	svc := NewService(repo, director, db.FromConn(conn), events, logg)

	return &discountFixture{svc: svc, repo: repo, conn: conn, adapter: adapter}
}

func (f *discountFixture) seedUnclaimedCode(t *testing.T, code string) *models.OrderDiscount {
	t.Helper()
	discount, err := f.repo.Create(context.Background(), &models.OrderDiscount{
		Code:        &code,
		DiscountKey: f.adapter.key,
		Trigger:     enums.DiscountTriggerUser,
		Reservation: types.ContextMap{},
		Context:     types.ContextMap{},
	})
	require.NoError(t, err)
	return discount
}

func testOrder() *models.Order {
	return &models.Order{ID: uuid.New(), UserID: uuid.New(), CurrencyCode: "EUR"}
}

func TestManualDiscountClaimsExistingCode(t *testing.T) {
	f := newDiscountFixture(t, nil)
	ctx := context.Background()
	f.seedUnclaimedCode(t, "SPRING")
	order := testOrder()

	claimed, err := f.svc.CreateManualOrderDiscount(ctx, order, "SPRING")
	require.NoError(t, err)
	require.NotNil(t, claimed.OrderID)
	assert.Equal(t, order.ID, *claimed.OrderID)
	assert.Equal(t, 1, f.adapter.reserveCalls)
	assert.Equal(t, "reserved", claimed.Reservation.GetString("token"))

	// The reservation must survive the write, not just the in-memory copy.
	reloaded, err := f.repo.FindByID(ctx, claimed.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, "reserved", reloaded.Reservation.GetString("token"))
}

func TestManualDiscountCodeIsSingleUse(t *testing.T) {
	f := newDiscountFixture(t, nil)
	ctx := context.Background()
	f.seedUnclaimedCode(t, "SPRING")

	_, err := f.svc.CreateManualOrderDiscount(ctx, testOrder(), "SPRING")
	require.NoError(t, err)

	_, err = f.svc.CreateManualOrderDiscount(ctx, testOrder(), "SPRING")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Contains(t, err.Error(), "code already present")
	assert.Equal(t, 1, f.adapter.reserveCalls)
}

func TestManualDiscountSameOrderTwice(t *testing.T) {
	f := newDiscountFixture(t, nil)
	ctx := context.Background()
	f.seedUnclaimedCode(t, "SPRING")
	order := testOrder()

	_, err := f.svc.CreateManualOrderDiscount(ctx, order, "SPRING")
	require.NoError(t, err)

	_, err = f.svc.CreateManualOrderDiscount(ctx, order, "SPRING")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 1, f.adapter.reserveCalls)
}

func TestManualDiscountReserveFailureRollsClaimBack(t *testing.T) {
	f := newDiscountFixture(t, nil)
	ctx := context.Background()
	seeded := f.seedUnclaimedCode(t, "SPRING")
	f.adapter.reserveErr = fmt.Errorf("budget exhausted")

	_, err := f.svc.CreateManualOrderDiscount(ctx, testOrder(), "SPRING")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeProvider))

	// The claim must be released so the code stays redeemable.
	row, err := f.repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Nil(t, row.OrderID)
}

func TestManualDiscountUnknownCode(t *testing.T) {
	f := newDiscountFixture(t, nil)

	_, err := f.svc.CreateManualOrderDiscount(context.Background(), testOrder(), "NOPE")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "code not valid")
}

func TestManualDiscountStaticCodeCreatesRow(t *testing.T) {
	f := newDiscountFixture(t, map[string]string{"WELCOME10": "test-discount"})
	ctx := context.Background()
	order := testOrder()

	discount, err := f.svc.CreateManualOrderDiscount(ctx, order, "welcome10")
	require.NoError(t, err)
	require.NotNil(t, discount.OrderID)
	assert.Equal(t, order.ID, *discount.OrderID)
	assert.Equal(t, enums.DiscountTriggerUser, discount.Trigger)
	assert.Equal(t, 1, f.adapter.reserveCalls)
	require.NotNil(t, discount.Code)
	assert.Equal(t, "welcome10", *discount.Code)
}

func TestManualDiscountStaticCodeReserveFailureCleansUp(t *testing.T) {
	f := newDiscountFixture(t, map[string]string{"WELCOME10": "test-discount"})
	ctx := context.Background()
	f.adapter.reserveErr = fmt.Errorf("budget exhausted")

	_, err := f.svc.CreateManualOrderDiscount(ctx, testOrder(), "WELCOME10")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeProvider))
	assert.Equal(t, 1, f.adapter.releaseCalls)

	var count int64
	require.NoError(t, f.conn.Model(&models.OrderDiscount{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSystemDiscountRequiresValidity(t *testing.T) {
	f := newDiscountFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateSystemDiscount(ctx, testOrder(), "test-discount")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	f.adapter.systemValid = true
	discount, err := f.svc.CreateSystemDiscount(ctx, testOrder(), "test-discount")
	require.NoError(t, err)
	assert.Equal(t, enums.DiscountTriggerSystem, discount.Trigger)
	assert.Zero(t, f.adapter.reserveCalls)
}

func TestDeleteReleasesUserReservation(t *testing.T) {
	f := newDiscountFixture(t, nil)
	ctx := context.Background()
	f.seedUnclaimedCode(t, "SPRING")

	claimed, err := f.svc.CreateManualOrderDiscount(ctx, testOrder(), "SPRING")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, claimed.ID))
	assert.Equal(t, 1, f.adapter.releaseCalls)

	row, err := f.repo.FindByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestDeleteSystemDiscountSkipsRelease(t *testing.T) {
	f := newDiscountFixture(t, nil)
	ctx := context.Background()
	f.adapter.systemValid = true

	discount, err := f.svc.CreateSystemDiscount(ctx, testOrder(), "test-discount")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, discount.ID))
	assert.Zero(t, f.adapter.releaseCalls)
}

func TestDeleteUnknownIDIsNoOp(t *testing.T) {
	f := newDiscountFixture(t, nil)
	require.NoError(t, f.svc.Delete(context.Background(), uuid.New()))
}

func TestReleaseAllForOrder(t *testing.T) {
	f := newDiscountFixture(t, map[string]string{"WELCOME10": "test-discount"})
	ctx := context.Background()
	order := testOrder()

	_, err := f.svc.CreateManualOrderDiscount(ctx, order, "WELCOME10")
	require.NoError(t, err)

	require.NoError(t, f.svc.ReleaseAllForOrder(ctx, order.ID))
	assert.Equal(t, 1, f.adapter.releaseCalls)

	rows, err := f.svc.FindAllByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
