package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// publisher is the part of *amqp.Channel the forwarder uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPForwarder republishes bus events to a durable RabbitMQ queue.
type AMQPForwarder struct {
	ch      publisher
	queue   string
	timeout time.Duration
	logger  *zerolog.Logger
	closers []func() error
}

// DialAMQP connects to the broker and declares the target queue.
func DialAMQP(url, queue string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}

	f := newAMQPForwarder(ch, queue, logger)
	f.closers = []func() error{ch.Close, conn.Close}
	return f, nil
}

func newAMQPForwarder(ch publisher, queue string, logger *zerolog.Logger) *AMQPForwarder {
	return &AMQPForwarder{ch: ch, queue: queue, timeout: 5 * time.Second, logger: logger}
}

// Attach subscribes the forwarder to every reservation event.
func (f *AMQPForwarder) Attach(bus *EventBus) {
	bus.Subscribe(f.Handle, ReservationEvents...)
}

func (f *AMQPForwarder) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.CreatedAt.UTC(),
		Type:         event.Type,
		Body:         event.Payload,
	}
	if err := f.ch.PublishWithContext(ctx, "", f.queue, false, false, msg); err != nil {
		return fmt.Errorf("amqp publish %s: %w", event.Type, err)
	}
	f.logger.Debug().Str("event", event.Type).Str("queue", f.queue).Msg("event forwarded")
	return nil
}

func (f *AMQPForwarder) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
