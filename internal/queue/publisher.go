// Package queue moves refund jobs and booking events over RabbitMQ. Refunds
// are published by the booking and payment services and consumed by the
// refund worker; booking events are published for downstream consumers only.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"staybook-backend/internal/config"
	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
)

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher keeps one connection and channel open for the life of the process
type Publisher struct {
	mu          sync.Mutex
	conn        *amqp.Connection
	ch          publishChannel
	refundQueue string
	eventQueue  string
}

// NewPublisher dials the broker and declares both durable queues
func NewPublisher(cfg config.RabbitMQConfig) (*Publisher, error) {
	logger.ExternalServiceCall("rabbitmq", "Dial", "refundQueue", cfg.RefundQueue, "eventQueue", cfg.EventQueue)
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	for _, q := range []string{cfg.RefundQueue, cfg.EventQueue} {
		if err := declare(ch, q); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}
	logger.ExternalServiceResult("rabbitmq", "Dial", nil)
	return &Publisher{conn: conn, ch: ch, refundQueue: cfg.RefundQueue, eventQueue: cfg.EventQueue}, nil
}

func declare(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", name, err)
	}
	return nil
}

func (p *Publisher) PublishRefund(ctx context.Context, job domain.RefundJob) error {
	return p.publish(ctx, p.refundQueue, job.BookingID, job)
}

func (p *Publisher) PublishEvent(ctx context.Context, evt domain.BookingEvent) error {
	return p.publish(ctx, p.eventQueue, evt.BookingID, evt)
}

func (p *Publisher) publish(ctx context.Context, queue, correlationID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", queue, err)
	}
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		logger.ExternalServiceResult("rabbitmq", "Publish", err, "queue", queue, "correlationID", correlationID)
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	logger.Debug("Message published", "queue", queue, "correlationID", correlationID)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		logger.Warn("Failed to close rabbitmq channel", "error", err)
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
