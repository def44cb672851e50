package notify

import (
	"context"
	"fmt"

	pkgevents "github.com/floroz/bazaar/pkg/events"
	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
)

// RoutingKeyPrefix prefixes the notification kind in the routing key
const RoutingKeyPrefix = "notification."

// AMQPNotifier publishes notifications to a topic exchange for the inbox worker
type AMQPNotifier struct {
	publisher pkgevents.EventPublisher
	exchange  string
}

// NewAMQPNotifier creates a notifier publishing to exchange
func NewAMQPNotifier(publisher pkgevents.EventPublisher, exchange string) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher, exchange: exchange}
}

// Notify encodes n and publishes it with routing key notification.<kind>
func (a *AMQPNotifier) Notify(ctx context.Context, n notification.Notification) error {
	body, err := Encode(n)
	if err != nil {
		return err
	}

	if err := a.publisher.Publish(ctx, a.exchange, RoutingKeyPrefix+string(n.Kind), body); err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", n.ID, err)
	}
	return nil
}
