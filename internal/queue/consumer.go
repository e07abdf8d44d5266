package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/service"
)

const maxBackoff = 30 * time.Second

// RefundConsumer feeds refund jobs from the queue into a RefundProcessor.
// Failed jobs are dropped from the queue; the booking stays refund-pending
// and the retry sweep publishes it again.
type RefundConsumer struct {
	url       string
	queue     string
	processor service.RefundProcessor
	prefetch  int
}

func NewRefundConsumer(url, queue string, processor service.RefundProcessor) *RefundConsumer {
	return &RefundConsumer{url: url, queue: queue, processor: processor, prefetch: 1}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff
func (c *RefundConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			logger.Warn("Refund consumer failed to dial broker", "error", err, "retryIn", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Refund consumer loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *RefundConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		logger.Warn("Refund consumer failed to set QoS", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	logger.Info("Refund consumer started", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *RefundConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var job domain.RefundJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.BookingID == "" {
		logger.Error("Malformed refund job rejected", "error", err, "body", string(d.Body))
		_ = d.Nack(false, false)
		return
	}

	if err := c.processor.Process(ctx, job); err != nil {
		logger.Error("Refund job failed, left for the retry sweep", "bookingID", job.BookingID, "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
