package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"shopping/internal/models"
	"shopping/pkg/lib/logger/sl"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends purchase events to a durable queue through the default exchange.
type Publisher struct {
	log   *slog.Logger
	conn  *amqp.Connection
	ch    Channel
	queue string
}

func New(log *slog.Logger, url, queue string) (*Publisher, error) {
	const op = "events.rabbitmq.New"
	log = log.With("op", op)

	conn, err := amqp.Dial(url)
	if err != nil {
		log.Error("Failed to connect to RabbitMQ", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Error("Failed to open channel", sl.Err(err))
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		log.Error("Failed to declare queue", slog.String("queue", queue), sl.Err(err))
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Publisher{
		log:   log,
		conn:  conn,
		ch:    ch,
		queue: q.Name,
	}, nil
}

func NewWithChannel(log *slog.Logger, ch Channel, queue string) *Publisher {
	return &Publisher{
		log:   log,
		ch:    ch,
		queue: queue,
	}
}

func (p *Publisher) Publish(ctx context.Context, event models.PurchaseEvent) error {
	const op = "events.rabbitmq.Publish"

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.PurchasedAt,
			Type:         "purchase.completed",
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.log.Warn("Failed to close channel", sl.Err(err))
	}
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
