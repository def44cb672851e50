//go:build integration

package events_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	pkgevents "github.com/floroz/bazaar/pkg/events"
	"github.com/floroz/bazaar/pkg/testhelpers"
	"github.com/floroz/bazaar/services/market-service/internal/adapters/events"
	"github.com/floroz/bazaar/services/market-service/internal/adapters/notify"
	"github.com/floroz/bazaar/services/market-service/internal/domain/marketevents"
	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
)

const (
	eventsExchange        = "market.events"
	notificationsExchange = "market.notifications"
)

type recordingInbox struct {
	mu   sync.Mutex
	seen []notification.Notification
}

func (r *recordingInbox) Deliver(_ context.Context, n notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
	return nil
}

func (r *recordingInbox) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func startRabbitMQ(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
		rabbitmq.WithAdminPassword("password"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Errorf("failed to terminate container: %s", termErr)
		}
	})

	amqpURL, err := container.AmqpURL(ctx)
	require.NoError(t, err)
	return amqpURL
}

func TestMarketEventsProducerIntegration(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	amqpURL := startRabbitMQ(t)

	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()
	dbPool := testDB.Pool

	conn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer conn.Close()

	producer, err := events.NewMarketEventsProducer(dbPool, conn, events.ProducerConfig{
		Exchange:    eventsExchange,
		BatchSize:   10,
		Interval:    100 * time.Millisecond,
		LockTimeout: time.Second,
	}, logger)
	require.NoError(t, err)
	defer producer.Close()

	ctxProducer, cancelProducer := context.WithCancel(ctx)
	errChan := make(chan error, 1)
	go func() {
		errChan <- producer.Run(ctxProducer)
	}()
	defer func() {
		cancelProducer()
		<-errChan
	}()

	consumerConn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer consumerConn.Close()

	ch, err := consumerConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, false, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "offer.*", eventsExchange, false, nil))

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	require.NoError(t, err)

	event, err := marketevents.New(marketevents.EventTypeOfferCreated, time.Now(), marketevents.Fields{
		"offer_id": int64(1),
		"item_id":  int64(2),
	})
	require.NoError(t, err)

	_, err = dbPool.Exec(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.EventType, event.Payload, pkgevents.OutboxStatusPending, event.CreatedAt)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, "offer.created", msg.RoutingKey)
		body, decodeErr := marketevents.Decode(msg.Body)
		require.NoError(t, decodeErr)
		assert.Equal(t, float64(1), body["offer_id"])
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for message from RabbitMQ")
	}

	require.Eventually(t, func() bool {
		var status string
		if scanErr := dbPool.QueryRow(ctx, "SELECT status FROM outbox_events WHERE id = $1", event.ID).Scan(&status); scanErr != nil {
			return false
		}
		return status == string(pkgevents.OutboxStatusPublished)
	}, 5*time.Second, 100*time.Millisecond, "Event status should be updated to 'published'")
}

func TestNotificationFlowIntegration(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	amqpURL := startRabbitMQ(t)

	conn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer conn.Close()

	inbox := &recordingInbox{}
	consumer := events.NewNotificationConsumer(conn, inbox, notificationsExchange, "notification_inbox_test", logger)

	ctxConsumer, cancelConsumer := context.WithCancel(ctx)
	errChan := make(chan error, 1)
	go func() {
		errChan <- consumer.Run(ctxConsumer)
	}()
	defer func() {
		cancelConsumer()
		<-errChan
	}()

	publisher, err := pkgevents.NewRabbitMQPublisher(conn, notificationsExchange)
	require.NoError(t, err)
	defer publisher.Close()
	notifier := notify.NewAMQPNotifier(publisher, notificationsExchange)

	n := notification.New(21, notification.KindOfferAccepted, "Offer accepted", "See you soon", map[string]any{"offer_id": int64(3)})

	// the queue may not be bound yet on the first attempts
	require.Eventually(t, func() bool {
		if inbox.Len() > 0 {
			return true
		}
		_ = notifier.Notify(ctx, n)
		return false
	}, 10*time.Second, 250*time.Millisecond)

	inbox.mu.Lock()
	defer inbox.mu.Unlock()
	assert.Equal(t, n.ID, inbox.seen[0].ID)
	assert.Equal(t, notification.KindOfferAccepted, inbox.seen[0].Kind)
}
