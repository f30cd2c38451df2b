package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"pledgepay/config"
	"pledgepay/pkg/logger"
)

// Publisher sends a message to the broker under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Handler processes one delivery. Returning an error nacks the message with
// requeue; nil acks it.
type Handler func(ctx context.Context, body []byte) error

// RabbitMQ wraps one connection and channel bound to a topic exchange.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *logger.Logger
}

// Dial connects to RabbitMQ and declares the topic exchange. The broker may
// take a while to come up alongside the service, so the dial retries.
func Dial(cfg config.RabbitMQConfig, l *logger.Logger) (*RabbitMQ, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < 10; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		l.Warnf("Failed to connect to RabbitMQ, retrying in 2s... (%d/10)", i+1)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		logger:   l,
	}, nil
}

func (b *RabbitMQ) Publish(ctx context.Context, routingKey string, body []byte) error {
	err := b.channel.PublishWithContext(ctx,
		b.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Consume declares queue, binds it to bindingKey on the exchange and runs
// handler for every delivery until ctx is cancelled. Each consumer loop gets
// its own channel so per-consumer flow control does not interfere.
func (b *RabbitMQ) Consume(ctx context.Context, queue, bindingKey string, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, bindingKey, b.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name, // queue
		"",     // consumer tag (auto-generated)
		false,  // auto-ack (we ack manually)
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	b.logger.Infof("Consumer started: queue=%s binding=%s", q.Name, bindingKey)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed for queue %s", queue)
			}
			if err := handler(ctx, msg.Body); err != nil {
				b.logger.Errorf("Error handling message on %s: %v", queue, err)
				msg.Nack(false, true)
			} else {
				msg.Ack(false)
			}
		}
	}
}

func (b *RabbitMQ) Close() {
	b.channel.Close()
	b.conn.Close()
}
