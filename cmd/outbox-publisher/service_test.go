package main

import (
	"context"
	"fmt"
	"io"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/config"
	"github.com/packlane/orderflow/pkg/db"
	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/enums"
	"github.com/packlane/orderflow/pkg/logger"
	"github.com/packlane/orderflow/pkg/outbox"
	"github.com/packlane/orderflow/pkg/outbox/payloads"
	"github.com/packlane/orderflow/pkg/outbox/registry"
)

type fakePublisher struct {
	messages   []*gcppubsub.Message
	publishErr error
}

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "msg-id", nil
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return fakeResult{err: p.publishErr}
}

type publisherFixture struct {
	svc       *Service
	conn      *gorm.DB
	client    *db.Client
	events    *outbox.Service
	publisher *fakePublisher
	cfg       *config.Config
}

func newPublisherFixture(t *testing.T) *publisherFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}))

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	client := db.FromConn(conn)
	repo := outbox.NewRepository(conn)
	events := outbox.NewService(repo, logg)

	cfg := &config.Config{}
	cfg.PubSub.DomainTopic = "domain-events"
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.MaxAttempts = 3

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	require.NoError(t, err)

	pub := &fakePublisher{}
	svc, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               client,
		Repository:       repo,
		Registry:         eventRegistry,
		PublisherFactory: func(string) publisher { return pub },
	})
	require.NoError(t, err)

	return &publisherFixture{
		svc:       svc,
		conn:      conn,
		client:    client,
		events:    events,
		publisher: pub,
		cfg:       cfg,
	}
}

func (f *publisherFixture) emitStatusEvent(t *testing.T) uuid.UUID {
	t.Helper()
	orderID := uuid.New()
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return f.events.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.OrderStatusEvent{
				OrderID: orderID,
				Status:  enums.OrderStatusConfirmed,
			},
		})
	})
	require.NoError(t, err)
	return orderID
}

func (f *publisherFixture) fetchRows(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	f := newPublisherFixture(t)
	orderID := f.emitStatusEvent(t)

	processed, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	require.Len(t, f.publisher.messages, 1)
	msg := f.publisher.messages[0]
	assert.Equal(t, string(enums.EventOrderConfirmed), msg.Attributes["event_type"])
	assert.Equal(t, orderID.String(), msg.Attributes["aggregate_id"])
	assert.NotEmpty(t, msg.Attributes["event_id"])

	rows := f.fetchRows(t)
	require.Len(t, rows, 1)
	assert.NotNil(t, rows[0].PublishedAt)
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	f := newPublisherFixture(t)

	processed, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Empty(t, f.publisher.messages)
}

func TestProcessBatchRetriesPublishFailure(t *testing.T) {
	f := newPublisherFixture(t)
	f.emitStatusEvent(t)
	f.publisher.publishErr = fmt.Errorf("transport down")

	processed, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	rows := f.fetchRows(t)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].PublishedAt)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Contains(t, *rows[0].LastError, "transport down")

	// Still below max attempts, so the next pass retries it.
	f.publisher.publishErr = nil
	processed, err = f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	rows = f.fetchRows(t)
	assert.NotNil(t, rows[0].PublishedAt)
}

func TestProcessBatchDiscardsUnknownEventType(t *testing.T) {
	f := newPublisherFixture(t)

	require.NoError(t, f.conn.Create(&models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.OutboxEventType("SOMETHING_ELSE"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":0,"eventId":"x","data":{}}`),
	}).Error)

	processed, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Empty(t, f.publisher.messages)

	rows := f.fetchRows(t)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].PublishedAt)
	assert.Equal(t, f.cfg.Outbox.MaxAttempts, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)

	// Pushed past the attempt window, so the queue is drained.
	processed, err = f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessBatchExhaustsAttempts(t *testing.T) {
	f := newPublisherFixture(t)
	f.emitStatusEvent(t)
	f.publisher.publishErr = fmt.Errorf("transport down")

	for i := 0; i < f.cfg.Outbox.MaxAttempts; i++ {
		_, err := f.svc.processBatch(context.Background())
		require.NoError(t, err)
	}

	processed, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Len(t, f.publisher.messages, f.cfg.Outbox.MaxAttempts)
}
