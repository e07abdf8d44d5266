package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/pricing"
	"staybook-backend/internal/repository"
	"staybook-backend/internal/utils"
)

// PaymentTimeoutReason is the cancellation reason recorded for expired unpaid bookings
const PaymentTimeoutReason = "payment_timeout"

type escrowService struct {
	bookings repository.BookingRepository
	txns     repository.TransactionRepository
	promos   repository.PromoRepository
	refunds  RefundProcessor
	events   EventPublisher
	notify   guestNotifier
	policy   Policy
	now      func() time.Time
}

// NewEscrowService builds the batch sweeps run by the scheduler. When events
// is nil, RetryPendingRefunds hands bookings straight to refunds.
func NewEscrowService(
	bookings repository.BookingRepository,
	txns repository.TransactionRepository,
	promos repository.PromoRepository,
	refunds RefundProcessor,
	notifier Notifier,
	events EventPublisher,
	policy Policy,
) EscrowService {
	return &escrowService{
		bookings: bookings,
		txns:     txns,
		promos:   promos,
		refunds:  refunds,
		events:   events,
		notify:   guestNotifier{notifier: notifier},
		policy:   policy,
		now:      time.Now,
	}
}

// sweep applies fn to every booking; a failing booking is logged and skipped
func sweep(name string, list []domain.Booking, fn func(b *domain.Booking) (bool, error)) SweepResult {
	var res SweepResult
	for i := range list {
		b := &list[i]
		touched, err := fn(b)
		if err != nil {
			res.Failed++
			logger.Error("Sweep failed for booking", "sweep", name, "bookingID", b.ID, "bookingNumber", b.BookingNumber, "error", err)
			continue
		}
		if touched {
			res.Processed++
		}
	}
	logger.Info("Sweep finished", "sweep", name, "candidates", len(list), "processed", res.Processed, "failed", res.Failed)
	return res
}

func daysUntil(checkIn, today time.Time) int {
	return int(utils.StartOfDay(checkIn).Sub(today).Hours() / 24)
}

// SendMilestoneReminders nudges milestone-plan guests: the second installment
// exactly a week before check-in, the last one inside the final week.
func (s *escrowService) SendMilestoneReminders(ctx context.Context) (SweepResult, error) {
	list, err := s.bookings.ListMilestoneDue(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	today := utils.StartOfDay(s.now())

	return sweep("milestone_reminders", list, func(b *domain.Booking) (bool, error) {
		days := daysUntil(b.CheckIn, today)
		var pt domain.PaymentType
		switch {
		case days == 7:
			pt = domain.PaymentTypeMilestone2
		case days >= 0 && days < 7:
			pt = domain.PaymentTypeMilestone3
		default:
			return false, nil
		}

		txns, err := s.txns.ListByBooking(ctx, b.ID)
		if err != nil {
			return false, err
		}
		if domain.HasCompleted(txns, pt) {
			return false, nil
		}
		amount, err := pricing.AmountDue(b.Payment.Plan, pt, b.Pricing.Total, s.policy.DepositPercent)
		if err != nil {
			return false, err
		}
		s.notify.send(ctx, b, milestoneReminderEmail(b, pt, amount, s.policy.Currency))
		return true, nil
	}), nil
}

func (s *escrowService) SendCheckInReminders(ctx context.Context) (SweepResult, error) {
	tomorrow := utils.AddDays(utils.StartOfDay(s.now()), 1)
	list, err := s.bookings.ListCheckingInBetween(ctx, tomorrow, utils.AddDays(tomorrow, 1))
	if err != nil {
		return SweepResult{}, err
	}
	return sweep("check_in_reminders", list, func(b *domain.Booking) (bool, error) {
		s.notify.send(ctx, b, checkInReminderEmail(b))
		return true, nil
	}), nil
}

// CompleteStays completes confirmed bookings whose check-out has passed and
// releases their held escrow to the merchant.
func (s *escrowService) CompleteStays(ctx context.Context) (SweepResult, error) {
	now := s.now()
	list, err := s.bookings.ListCompletable(ctx, utils.StartOfDay(now))
	if err != nil {
		return SweepResult{}, err
	}

	return sweep("complete_stays", list, func(b *domain.Booking) (bool, error) {
		if b.Status == domain.BookingStatusConfirmed {
			if err := b.Transition(domain.BookingStatusCompleted); err != nil {
				return false, err
			}
			if err := s.bookings.UpdateStatus(ctx, b.ID, domain.BookingStatusConfirmed, domain.BookingStatusCompleted); err != nil {
				return false, err
			}
			s.notify.send(ctx, b, stayCompletedEmail(b))
			publishEvent(ctx, s.events, domain.NewBookingEvent(domain.BookingEventCompleted, b, now))
		}

		txns, err := s.txns.ListByBooking(ctx, b.ID)
		if err != nil {
			return false, err
		}
		var errs []error
		for _, t := range txns {
			if t.Status != domain.TransactionStatusCompleted || t.EscrowStatus != domain.EscrowStatusHeld {
				continue
			}
			if err := s.txns.ReleaseEscrow(ctx, t.ID, now); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", t.ExternalID, err))
				continue
			}
			_ = t.ReleaseEscrow(now)
		}

		escrow := domain.DeriveEscrowStatus(txns)
		if err := s.bookings.UpdatePayment(ctx, b.ID, b.Payment.Status, escrow); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return false, errors.Join(errs...)
		}
		logger.Info("Escrow released", "bookingID", b.ID, "bookingNumber", b.BookingNumber, "escrowStatus", escrow)
		return true, nil
	}), nil
}

// ExpirePendingBookings cancels unpaid pending bookings older than the expiry window
func (s *escrowService) ExpirePendingBookings(ctx context.Context) (SweepResult, error) {
	if s.policy.PendingExpiry <= 0 {
		return SweepResult{}, nil
	}
	now := s.now()
	list, err := s.bookings.ListStalePending(ctx, now.Add(-s.policy.PendingExpiry))
	if err != nil {
		return SweepResult{}, err
	}

	return sweep("expire_pending", list, func(b *domain.Booking) (bool, error) {
		c := &domain.Cancellation{
			CancelledAt:      now,
			Reason:           PaymentTimeoutReason,
			RefundAmount:     decimal.Zero,
			PolicyAmount:     decimal.Zero,
			RefundStatus:     domain.RefundStatusNotApplicable,
			DaysUntilCheckIn: b.DaysUntilCheckIn(now),
			PolicyApplied:    fmt.Sprintf("unpaid bookings expire after %s", s.policy.PendingExpiry),
		}
		err := s.bookings.Close(ctx, b.ID, domain.BookingStatusPending, domain.BookingStatusCancelled, c)
		if errors.Is(err, domain.ErrConflict) {
			// paid or cancelled since it was listed
			return false, nil
		}
		if err != nil {
			return false, err
		}
		b.Status = domain.BookingStatusCancelled
		b.Cancellation = c
		s.notify.send(ctx, b, bookingCancelledEmail(b, CancellationDetails{
			RefundAmount:     c.RefundAmount,
			PolicyAmount:     c.PolicyAmount,
			RefundStatus:     c.RefundStatus,
			PolicyApplied:    c.PolicyApplied,
			DaysUntilCheckIn: c.DaysUntilCheckIn,
		}, s.policy.Currency))
		publishEvent(ctx, s.events, domain.NewBookingEvent(domain.BookingEventCancelled, b, now))
		return true, nil
	}), nil
}

// RetryPendingRefunds re-submits every refund still marked pending
func (s *escrowService) RetryPendingRefunds(ctx context.Context) (SweepResult, error) {
	list, err := s.bookings.ListPendingRefunds(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	now := s.now()

	return sweep("retry_refunds", list, func(b *domain.Booking) (bool, error) {
		job := domain.RefundJob{BookingID: b.ID, RequestedAt: now}
		if b.Cancellation != nil {
			job.Reason = b.Cancellation.Reason
		}
		if s.events != nil {
			return true, s.events.PublishRefund(ctx, job)
		}
		if s.refunds == nil {
			return false, errors.New("no refund queue or processor configured")
		}
		return true, s.refunds.Process(ctx, job)
	}), nil
}

func (s *escrowService) ExpirePromoCodes(ctx context.Context) (SweepResult, error) {
	n, err := s.promos.DeactivateExpired(ctx, s.now())
	if err != nil {
		return SweepResult{}, err
	}
	logger.Info("Promo codes deactivated", "count", n)
	return SweepResult{Processed: int(n)}, nil
}
