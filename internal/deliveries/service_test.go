package deliveries

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/db"
	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/enums"
	"github.com/packlane/orderflow/pkg/logger"
	"github.com/packlane/orderflow/pkg/outbox"
	"github.com/packlane/orderflow/pkg/types"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.OrderDelivery{},
		&models.OutboxEvent{},
	))

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	svc := NewService(NewRepository(conn), db.FromConn(conn), events, logg)
	return svc, conn
}

func TestCreateDefaultsToOpen(t *testing.T) {
	svc, _ := newTestService(t)

	delivery, err := svc.Create(context.Background(), uuid.New(), "test-carrier")
	require.NoError(t, err)

	assert.Nil(t, delivery.Status)
	assert.Equal(t, enums.DeliveryStatusOpen, delivery.EffectiveStatus())
	assert.Nil(t, delivery.DeliveredAt)
}

func TestUpdateStatusStampsDeliveredAtOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	delivery, err := svc.Create(ctx, uuid.New(), "test-carrier")
	require.NoError(t, err)

	delivered, err := svc.UpdateStatus(ctx, delivery.ID, enums.DeliveryStatusDelivered, "handed over")
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	firstDeliveredAt := *delivered.DeliveredAt

	returned, err := svc.UpdateStatus(ctx, delivery.ID, enums.DeliveryStatusReturned, "refused at door")
	require.NoError(t, err)
	redelivered, err := svc.UpdateStatus(ctx, returned.ID, enums.DeliveryStatusDelivered, "second attempt")
	require.NoError(t, err)

	assert.Equal(t, firstDeliveredAt.Unix(), redelivered.DeliveredAt.Unix())
	assert.Equal(t, enums.DeliveryStatusDelivered.String(), redelivered.Log.LastStatus())
}

func TestUpdateStatusUnknownIDIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)

	delivery, err := svc.UpdateStatus(context.Background(), uuid.New(), enums.DeliveryStatusDelivered, "")
	require.NoError(t, err)
	assert.Nil(t, delivery)
}

func TestUpdateContextMerges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	delivery, err := svc.Create(ctx, uuid.New(), "test-carrier")
	require.NoError(t, err)

	_, err = svc.UpdateContext(ctx, delivery.ID, types.ContextMap{"tracking": "XZ123"})
	require.NoError(t, err)
	merged, err := svc.UpdateContext(ctx, delivery.ID, types.ContextMap{"label": "printed"})
	require.NoError(t, err)

	assert.Equal(t, "XZ123", merged.Context.GetString("tracking"))
	assert.Equal(t, "printed", merged.Context.GetString("label"))
}

func TestUpdateCalculationReplaces(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	delivery, err := svc.Create(ctx, uuid.New(), "test-carrier")
	require.NoError(t, err)

	sheet := types.Calculation{
		{Category: types.CalculationCategoryDelivery, Amount: decimal.NewFromInt(499)},
	}
	updated, err := svc.UpdateCalculation(ctx, delivery.ID, sheet)
	require.NoError(t, err)
	assert.Len(t, updated.Calculation, 1)
	assert.True(t, updated.Calculation.Total().Equal(decimal.NewFromInt(499)))
}
