package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ContentTypeProtobuf is set on every message published by the services
const ContentTypeProtobuf = "application/x-protobuf"

// RabbitMQPublisher implements EventPublisher on a single AMQP channel
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQPublisher opens a channel and declares the given topic exchanges
func NewRabbitMQPublisher(conn *amqp.Connection, exchanges ...string) (*RabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	for _, exchange := range exchanges {
		if declErr := DeclareTopicExchange(ch, exchange); declErr != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, declErr)
		}
	}

	return &RabbitMQPublisher{
		conn:    conn,
		channel: ch,
	}, nil
}

// DeclareTopicExchange declares a durable topic exchange
func DeclareTopicExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
}

// Close closes the channel
func (p *RabbitMQPublisher) Close() error {
	return p.channel.Close()
}

// Publish publishes a persistent protobuf message to the broker
func (p *RabbitMQPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return p.channel.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  ContentTypeProtobuf,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
