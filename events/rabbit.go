package events

import (
	"context"
	"encoding/json"
	"fmt"

	"casdoorlink/core"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitPublisher sends gateway events to a durable topic exchange, routed by event type.
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
}

// NewRabbitPublisher connects to RabbitMQ and declares the exchange.
func NewRabbitPublisher(url string, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &RabbitPublisher{conn: conn, exchange: exchange}, nil
}

func (r *RabbitPublisher) Publish(ctx context.Context, event core.Event) error {
	msg, err := NewPublishing(event)
	if err != nil {
		return err
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx, r.exchange, string(event.Type), false, false, msg)
}

func (r *RabbitPublisher) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// NewPublishing encodes an event as a persistent JSON message.
func NewPublishing(event core.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to encode event: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    event.OccurredAt,
		Type:         string(event.Type),
		Body:         body,
	}, nil
}
