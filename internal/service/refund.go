package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/gateway"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/repository"
)

type refundProcessor struct {
	bookings repository.BookingRepository
	txns     repository.TransactionRepository
	gateways *gateway.Registry
	events   EventPublisher
	notify   guestNotifier
	policy   Policy
	now      func() time.Time
}

func NewRefundProcessor(
	bookings repository.BookingRepository,
	txns repository.TransactionRepository,
	gateways *gateway.Registry,
	notifier Notifier,
	events EventPublisher,
	policy Policy,
) RefundProcessor {
	return &refundProcessor{
		bookings: bookings,
		txns:     txns,
		gateways: gateways,
		events:   events,
		notify:   guestNotifier{notifier: notifier},
		policy:   policy,
		now:      time.Now,
	}
}

// Process refunds a closed booking's held captures, oldest first, until the
// recorded refund amount is covered; the remaining held captures are released
// to the merchant. Captures made after the booking closed are refunded in
// full. Each gateway refund is keyed by transaction so a re-run after a
// partial failure never pays out twice.
func (p *refundProcessor) Process(ctx context.Context, job domain.RefundJob) error {
	logger.EnterMethod("refundProcessor.Process", "bookingID", job.BookingID)

	b, err := p.bookings.GetByID(ctx, job.BookingID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("Refund job for unknown booking dropped", "bookingID", job.BookingID)
		return nil
	}
	if err != nil {
		return err
	}
	c := b.Cancellation
	if c == nil || c.RefundStatus != domain.RefundStatusPending {
		logger.Info("Refund already settled, skipping", "bookingID", b.ID, "status", b.Status)
		return nil
	}

	adapter, err := p.gateways.For(b.Payment.Method)
	if err != nil {
		p.fail(ctx, b, err)
		return nil
	}
	txns, err := p.txns.ListByBooking(ctx, b.ID)
	if err != nil {
		return err
	}

	reason := job.Reason
	if reason == "" {
		reason = c.Reason
	}
	if reason == "" {
		reason = "booking " + string(b.Status)
	}

	remaining := c.RefundAmount
	for _, t := range txns {
		if t.Status == domain.TransactionStatusRefunded && !refundedLate(t, c) {
			remaining = remaining.Sub(t.RefundAmount)
		}
	}

	now := p.now()
	refunded := decimal.Zero
	for _, t := range txns {
		if t.Status != domain.TransactionStatusCompleted || t.EscrowStatus != domain.EscrowStatusHeld {
			continue
		}
		late := isLateCapture(t, c)
		amount := t.Amount
		if !late {
			amount = decimal.Max(decimal.Min(remaining, t.Amount), decimal.Zero)
		}

		if amount.IsZero() {
			if err := p.txns.ReleaseEscrow(ctx, t.ID, now); err != nil {
				return err
			}
			_ = t.ReleaseEscrow(now)
			continue
		}

		req := gateway.RefundRequest{
			ExternalID:     t.ExternalID,
			Currency:       t.Currency,
			Reason:         reason,
			IdempotencyKey: "refund-" + t.ID,
		}
		if amount.LessThan(t.Amount) {
			req.Amount = decimal.NewNullDecimal(amount)
		}
		result, err := adapter.Refund(ctx, req)
		if err != nil {
			if gateway.IsRetryable(err) {
				logger.ExitMethodWithError("refundProcessor.Process", err, "bookingID", b.ID, "externalID", t.ExternalID)
				return fmt.Errorf("refund %s: %w", t.ExternalID, err)
			}
			p.fail(ctx, b, err)
			return nil
		}
		logger.Info("Gateway refund issued", "bookingID", b.ID, "externalID", t.ExternalID, "refundID", result.RefundID, "status", result.Status, "amount", amount.String())

		if err := t.RefundEscrow(amount, reason, now); err != nil {
			p.fail(ctx, b, err)
			return nil
		}
		if err := p.txns.RecordRefund(ctx, t); err != nil {
			return err
		}
		refunded = refunded.Add(amount)
		if !late {
			remaining = remaining.Sub(amount)
		}
	}

	if err := p.bookings.UpdateRefundStatus(ctx, b.ID, domain.RefundStatusProcessed); err != nil {
		return err
	}
	c.RefundStatus = domain.RefundStatusProcessed

	status := b.Payment.Status
	for _, t := range txns {
		if t.Status == domain.TransactionStatusRefunded {
			status = domain.PaymentStatusRefunded
			break
		}
	}
	escrow := domain.DeriveEscrowStatus(txns)
	if err := p.bookings.UpdatePayment(ctx, b.ID, status, escrow); err != nil {
		return err
	}
	b.Payment.Status = status
	b.Payment.EscrowStatus = escrow

	if refunded.IsPositive() {
		p.notify.send(ctx, b, refundProcessedEmail(b, refunded, p.policy.Currency))
		publishEvent(ctx, p.events, domain.NewBookingEvent(domain.BookingEventRefunded, b, now))
	}
	logger.ExitMethod("refundProcessor.Process", "bookingID", b.ID, "refunded", refunded.String(), "escrowStatus", escrow)
	return nil
}

// refundedLate reports whether t was refunded as a capture made after closing
func refundedLate(t *domain.PaymentTransaction, c *domain.Cancellation) bool {
	return t.EscrowHeldAt != nil && t.EscrowHeldAt.After(c.CancelledAt)
}

// fail marks the refund failed; operators settle it by hand
func (p *refundProcessor) fail(ctx context.Context, b *domain.Booking, cause error) {
	logger.Error("Refund failed", "bookingID", b.ID, "bookingNumber", b.BookingNumber, "error", cause)
	if err := p.bookings.UpdateRefundStatus(ctx, b.ID, domain.RefundStatusFailed); err != nil {
		logger.Error("Failed to mark refund failed", "bookingID", b.ID, "error", err)
	}
}
