package events

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	pkgevents "github.com/floroz/bazaar/pkg/events"
	"github.com/floroz/bazaar/services/market-service/internal/adapters/notify"
	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
)

// Inbox stores delivered notifications
type Inbox interface {
	Deliver(ctx context.Context, n notification.Notification) error
}

// NotificationConsumer moves notifications from RabbitMQ into the user inbox
type NotificationConsumer struct {
	conn     *amqp.Connection
	inbox    Inbox
	exchange string
	queue    string
	logger   *slog.Logger
}

// NewNotificationConsumer creates a new notification consumer
func NewNotificationConsumer(conn *amqp.Connection, inbox Inbox, exchange, queue string, logger *slog.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		conn:     conn,
		inbox:    inbox,
		exchange: exchange,
		queue:    queue,
		logger:   logger.With("component", "notification_consumer", "queue", queue),
	}
}

// Run starts the consumer loop. It returns nil once ctx is canceled.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if setupErr := c.setupRabbitMQ(ch); setupErr != nil {
		return fmt.Errorf("failed to setup rabbitmq: %w", setupErr)
	}

	msgs, err := ch.Consume(
		c.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Waiting for notifications...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *NotificationConsumer) handle(ctx context.Context, d amqp.Delivery) {
	n, err := notify.Decode(d.Body)
	if err != nil {
		c.logger.Error("Failed to decode notification", "error", err, "routing_key", d.RoutingKey)
		// a malformed message will never decode
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to Nack message", "error", nackErr)
		}
		return
	}

	if err := c.inbox.Deliver(ctx, n); err != nil {
		c.logger.Error("Failed to deliver notification", "error", err, "notification_id", n.ID)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("Failed to Nack message (requeue)", "error", nackErr)
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("Failed to Ack message", "error", ackErr)
	}
	c.logger.Debug("Delivered notification", "notification_id", n.ID, "user_id", n.UserID, "kind", n.Kind)
}

func (c *NotificationConsumer) setupRabbitMQ(ch *amqp.Channel) error {
	if err := pkgevents.DeclareTopicExchange(ch, c.exchange); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return err
	}

	return ch.QueueBind(
		q.Name,                      // queue name
		notify.RoutingKeyPrefix+"#", // routing key
		c.exchange,                  // exchange
		false,
		nil,
	)
}
