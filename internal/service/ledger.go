package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/gateway"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/pricing"
	"staybook-backend/internal/repository"
)

type paymentService struct {
	bookings repository.BookingRepository
	txns     repository.TransactionRepository
	gateways *gateway.Registry
	claims   WebhookClaimer
	events   EventPublisher
	notify   guestNotifier
	policy   Policy
	now      func() time.Time
}

// NewPaymentService wires the transaction ledger to the gateway adapters.
// claims may be nil, in which case the ledger's unique key alone de-duplicates webhooks.
func NewPaymentService(
	bookings repository.BookingRepository,
	txns repository.TransactionRepository,
	gateways *gateway.Registry,
	claims WebhookClaimer,
	notifier Notifier,
	events EventPublisher,
	policy Policy,
) PaymentService {
	return &paymentService{
		bookings: bookings,
		txns:     txns,
		gateways: gateways,
		claims:   claims,
		events:   events,
		notify:   guestNotifier{notifier: notifier},
		policy:   policy,
		now:      time.Now,
	}
}

func (s *paymentService) InitiatePayment(ctx context.Context, userID, bookingID string, pt domain.PaymentType) (*PaymentIntent, error) {
	logger.EnterMethod("paymentService.InitiatePayment", "bookingID", bookingID, "paymentType", pt)

	b, err := ownedBooking(ctx, s.bookings, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if !pt.BelongsTo(b.Payment.Plan) {
		return nil, domain.NewValidationError("payment_type", fmt.Sprintf("%s is not part of the %s plan", pt, b.Payment.Plan))
	}
	switch b.Status {
	case domain.BookingStatusPending:
		if first := b.Payment.Plan.FirstObligation(); pt != first {
			return nil, domain.Conflictf("booking must be confirmed with the %s payment first", first)
		}
	case domain.BookingStatusConfirmed:
	default:
		return nil, domain.Conflictf("booking %s is %s and accepts no payments", b.BookingNumber, b.Status)
	}

	existing, err := s.txns.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if domain.HasCompleted(existing, pt) {
		return nil, domain.Conflictf("%s payment for booking %s is already captured", pt, b.BookingNumber)
	}

	amount, err := pricing.AmountDue(b.Payment.Plan, pt, b.Pricing.Total, s.policy.DepositPercent)
	if err != nil {
		return nil, err
	}
	adapter, err := s.gateways.For(b.Payment.Method)
	if err != nil {
		return nil, err
	}
	intent, err := adapter.CreateIntent(ctx, gateway.IntentRequest{
		Amount:         amount,
		Currency:       s.policy.Currency,
		ReferenceID:    b.BookingNumber,
		Description:    fmt.Sprintf("Booking %s (%s)", b.BookingNumber, pt),
		IdempotencyKey: fmt.Sprintf("intent-%s-%s-%s", b.ID, pt, amount.StringFixed(2)),
	})
	if err != nil {
		logger.ExitMethodWithError("paymentService.InitiatePayment", err, "bookingID", b.ID)
		return nil, err
	}

	now := s.now()
	txn := &domain.PaymentTransaction{
		ID:           uuid.NewString(),
		BookingID:    b.ID,
		Gateway:      b.Payment.Method,
		ExternalID:   intent.ExternalID,
		Amount:       amount,
		Currency:     s.policy.Currency,
		PaymentType:  pt,
		Status:       domain.TransactionStatusPending,
		EscrowStatus: domain.EscrowStatusNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		// the gateway handed back an intent we already track
		if txn, err = s.txns.GetByExternalID(ctx, b.Payment.Method, intent.ExternalID); err != nil {
			return nil, err
		}
	}

	logger.ExitMethod("paymentService.InitiatePayment", "bookingID", b.ID, "externalID", intent.ExternalID, "amount", amount.String())
	return &PaymentIntent{
		TransactionID: txn.ID,
		Gateway:       b.Payment.Method,
		ExternalID:    intent.ExternalID,
		PaymentType:   pt,
		Amount:        amount,
		Currency:      s.policy.Currency,
		ClientPayload: intent.ClientPayload,
	}, nil
}

func (s *paymentService) CapturePayment(ctx context.Context, userID, bookingID, externalID string, pt domain.PaymentType) (*CaptureResult, error) {
	b, err := ownedBooking(ctx, s.bookings, userID, bookingID)
	if err != nil {
		return nil, err
	}
	return s.capture(ctx, b, externalID, pt)
}

func (s *paymentService) VerifyBakongPayment(ctx context.Context, userID, bookingID, md5 string, pt domain.PaymentType) (*CaptureResult, error) {
	b, err := ownedBooking(ctx, s.bookings, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Payment.Method != domain.PaymentMethodBakong {
		return nil, domain.NewValidationError("payment_method", fmt.Sprintf("booking %s is paid with %s", b.BookingNumber, b.Payment.Method))
	}
	return s.capture(ctx, b, md5, pt)
}

func (s *paymentService) capture(ctx context.Context, b *domain.Booking, externalID string, pt domain.PaymentType) (*CaptureResult, error) {
	logger.EnterMethod("paymentService.capture", "bookingID", b.ID, "externalID", externalID)

	if externalID == "" {
		return nil, domain.NewValidationError("external_id", "is required")
	}
	txn, err := s.txns.GetByExternalID(ctx, b.Payment.Method, externalID)
	switch {
	case errors.Is(err, domain.ErrNotFound) && b.Payment.Method == domain.PaymentMethodBakong:
		// a KHQR md5 carries no booking reference, so only hashes issued by InitiatePayment are accepted
		logger.Warn("Untracked Bakong md5 rejected", "bookingID", b.ID, "md5", externalID)
		return nil, domain.NotFoundf("payment %s", externalID)
	case errors.Is(err, domain.ErrNotFound):
		txn = nil
		if !pt.BelongsTo(b.Payment.Plan) {
			return nil, domain.NewValidationError("payment_type", fmt.Sprintf("%s is not part of the %s plan", pt, b.Payment.Plan))
		}
	case err != nil:
		return nil, err
	case txn.BookingID != b.ID:
		return nil, domain.NotFoundf("transaction %s", externalID)
	case txn.Status == domain.TransactionStatusCompleted || txn.Status == domain.TransactionStatusRefunded:
		// captured earlier by a webhook or a previous call
		if err := s.evaluate(ctx, b); err != nil {
			return nil, err
		}
		return &CaptureResult{Status: gateway.StatusCompleted, Transaction: txn, Booking: b}, nil
	default:
		pt = txn.PaymentType
	}

	adapter, err := s.gateways.For(b.Payment.Method)
	if err != nil {
		return nil, err
	}
	res, err := adapter.Capture(ctx, externalID)
	if err != nil {
		logger.ExitMethodWithError("paymentService.capture", err, "bookingID", b.ID, "externalID", externalID)
		return nil, err
	}
	if res.ReferenceID != "" && res.ReferenceID != b.BookingNumber && res.ReferenceID != b.ID {
		return nil, domain.Invariantf("%s payment %s belongs to %s, not %s", b.Payment.Method, externalID, res.ReferenceID, b.BookingNumber)
	}
	if res.ExternalID == "" {
		res.ExternalID = externalID
	}

	txn, err = s.record(ctx, b, txn, pt, res)
	if err != nil {
		return nil, err
	}

	logger.ExitMethod("paymentService.capture", "bookingID", b.ID, "status", res.Status, "bookingStatus", b.Status)
	return &CaptureResult{Status: res.Status, Transaction: txn, Booking: b}, nil
}

// record applies a gateway outcome to the ledger and re-evaluates the
// booking. txn is nil when the external id has no ledger row yet. Pending
// and timed-out results leave the ledger untouched.
func (s *paymentService) record(ctx context.Context, b *domain.Booking, txn *domain.PaymentTransaction, pt domain.PaymentType, res *gateway.TransactionResult) (*domain.PaymentTransaction, error) {
	if !res.Status.Final() {
		logger.Info("Payment not settled yet", "bookingID", b.ID, "externalID", res.ExternalID, "status", res.Status)
		return txn, nil
	}

	now := s.now()
	isNew := txn == nil
	if isNew {
		txn = &domain.PaymentTransaction{
			ID:           uuid.NewString(),
			BookingID:    b.ID,
			Gateway:      b.Payment.Method,
			ExternalID:   res.ExternalID,
			Currency:     s.policy.Currency,
			PaymentType:  pt,
			EscrowStatus: domain.EscrowStatusNone,
			CreatedAt:    now,
		}
	}
	if res.Amount.IsPositive() {
		txn.Amount = res.Amount
	}
	if res.Currency != "" {
		txn.Currency = res.Currency
	}
	txn.PayerEmail = res.PayerEmail
	txn.PayerName = res.PayerName
	txn.RawPayload = res.Raw
	txn.UpdatedAt = now

	var err error
	if res.Status == gateway.StatusCompleted {
		txn.Status = domain.TransactionStatusCompleted
		txn.EscrowStatus = domain.EscrowStatusHeld
		txn.EscrowHeldAt = &now
		if isNew {
			err = s.txns.Create(ctx, txn)
		} else {
			err = s.txns.MarkCompleted(ctx, txn)
		}
	} else {
		txn.Status = domain.TransactionStatusFailed
		if isNew {
			err = s.txns.Create(ctx, txn)
		} else {
			err = s.txns.MarkFailed(ctx, txn)
		}
	}

	switch {
	case errors.Is(err, repository.ErrDuplicate):
		logger.Info("Payment outcome already recorded", "bookingID", b.ID, "externalID", txn.ExternalID)
		if stored, getErr := s.txns.GetByExternalID(ctx, b.Payment.Method, txn.ExternalID); getErr == nil {
			txn = stored
		}
	case err != nil:
		return nil, err
	default:
		logger.Info("Payment recorded", "bookingID", b.ID, "externalID", txn.ExternalID, "status", txn.Status, "amount", txn.Amount.String())
	}

	if err := s.evaluate(ctx, b); err != nil {
		return nil, err
	}
	return txn, nil
}

// evaluate derives the booking's payment state from the ledger and confirms a
// pending booking once the plan's first obligation is covered.
func (s *paymentService) evaluate(ctx context.Context, b *domain.Booking) error {
	txns, err := s.txns.ListByBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	b.Payment.Transactions = domain.Summarize(txns)

	if b.Status == domain.BookingStatusCancelled || b.Status == domain.BookingStatusRejected {
		s.refundLateCaptures(ctx, b, txns)
		return nil
	}

	now := s.now()
	confirmed := false
	if b.Status == domain.BookingStatusPending && s.firstObligationMet(b, txns) {
		err := s.bookings.UpdateStatus(ctx, b.ID, domain.BookingStatusPending, domain.BookingStatusConfirmed)
		switch {
		case err == nil:
			b.Status = domain.BookingStatusConfirmed
			confirmed = true
		case errors.Is(err, domain.ErrConflict):
			fresh, getErr := s.bookings.GetByID(ctx, b.ID)
			if getErr != nil {
				return getErr
			}
			b.Status = fresh.Status
			b.Cancellation = fresh.Cancellation
			if b.Status == domain.BookingStatusCancelled || b.Status == domain.BookingStatusRejected {
				s.refundLateCaptures(ctx, b, txns)
				return nil
			}
		default:
			return err
		}
	}

	status := paymentStatus(b.Pricing.Total, domain.CapturedTotal(txns))
	escrow := domain.DeriveEscrowStatus(txns)
	if status != b.Payment.Status || escrow != b.Payment.EscrowStatus {
		if err := s.bookings.UpdatePayment(ctx, b.ID, status, escrow); err != nil {
			return err
		}
		b.Payment.Status = status
		b.Payment.EscrowStatus = escrow
	}

	if confirmed {
		logger.Info("Booking confirmed", "bookingID", b.ID, "bookingNumber", b.BookingNumber, "paymentStatus", status)
		s.notify.send(ctx, b, bookingConfirmedEmail(b, s.policy.Currency))
		publishEvent(ctx, s.events, domain.NewBookingEvent(domain.BookingEventConfirmed, b, now))
	}
	return nil
}

func (s *paymentService) firstObligationMet(b *domain.Booking, txns []*domain.PaymentTransaction) bool {
	first := b.Payment.Plan.FirstObligation()
	due, err := pricing.AmountDue(b.Payment.Plan, first, b.Pricing.Total, s.policy.DepositPercent)
	if err != nil {
		return false
	}
	paid := decimal.Zero
	for _, t := range txns {
		if t.Status == domain.TransactionStatusCompleted && t.PaymentType == first {
			paid = paid.Add(t.Amount)
		}
	}
	return paid.GreaterThanOrEqual(due.Sub(amountTolerance))
}

func paymentStatus(total, captured decimal.Decimal) domain.PaymentStatus {
	switch {
	case captured.IsPositive() && captured.GreaterThanOrEqual(total.Sub(amountTolerance)):
		return domain.PaymentStatusCompleted
	case captured.IsPositive():
		return domain.PaymentStatusPartial
	default:
		return domain.PaymentStatusPending
	}
}

// refundLateCaptures queues a refund for money captured after the booking closed
func (s *paymentService) refundLateCaptures(ctx context.Context, b *domain.Booking, txns []*domain.PaymentTransaction) {
	if b.Cancellation == nil {
		return
	}
	late := decimal.Zero
	for _, t := range txns {
		if isLateCapture(t, b.Cancellation) {
			late = late.Add(t.Amount)
		}
	}
	if late.IsZero() {
		return
	}

	logger.Warn("Payment captured on a closed booking, refunding", "bookingID", b.ID, "status", b.Status, "amount", late.String())
	if b.Cancellation.RefundStatus != domain.RefundStatusPending {
		if err := s.bookings.UpdateRefundStatus(ctx, b.ID, domain.RefundStatusPending); err != nil {
			logger.Error("Failed to reopen refund", "bookingID", b.ID, "error", err)
			return
		}
		b.Cancellation.RefundStatus = domain.RefundStatusPending
	}
	enqueueRefund(ctx, s.events, domain.RefundJob{
		BookingID:   b.ID,
		Reason:      "payment captured after booking was " + string(b.Status),
		RequestedAt: s.now(),
	})
}

// isLateCapture reports whether t is a held capture made after the booking was closed
func isLateCapture(t *domain.PaymentTransaction, c *domain.Cancellation) bool {
	return t.Status == domain.TransactionStatusCompleted &&
		t.EscrowStatus == domain.EscrowStatusHeld &&
		t.EscrowHeldAt != nil && t.EscrowHeldAt.After(c.CancelledAt)
}

func (s *paymentService) HandleWebhook(ctx context.Context, method domain.PaymentMethod, req gateway.WebhookRequest) error {
	adapter, err := s.gateways.For(method)
	if err != nil {
		return err
	}
	evt, err := adapter.VerifyWebhook(ctx, req)
	if err != nil {
		logger.Warn("Webhook rejected", "gateway", method, "error", err)
		return err
	}
	logger.Info("Webhook verified", "gateway", method, "eventID", evt.EventID, "type", evt.Type, "kind", evt.Kind)
	if evt.Kind == gateway.EventIgnored {
		return nil
	}

	if s.claims != nil && evt.EventID != "" {
		fresh, err := s.claims.Claim(ctx, string(method)+":"+evt.EventID)
		switch {
		case err != nil:
			logger.Warn("Webhook claim unavailable, relying on ledger", "gateway", method, "eventID", evt.EventID, "error", err)
		case !fresh:
			logger.Info("Duplicate webhook delivery skipped", "gateway", method, "eventID", evt.EventID)
			return nil
		}
	}

	if err := s.dispatch(ctx, method, evt); err != nil {
		logger.Error("Webhook processing failed", "gateway", method, "eventID", evt.EventID, "error", err)
	}
	return nil
}

func (s *paymentService) dispatch(ctx context.Context, method domain.PaymentMethod, evt *gateway.WebhookEvent) error {
	txn, err := s.txns.GetByExternalID(ctx, method, evt.Result.ExternalID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("Webhook for unknown payment", "gateway", method, "externalID", evt.Result.ExternalID)
		return nil
	}
	if err != nil {
		return err
	}
	b, err := s.bookings.GetByID(ctx, txn.BookingID)
	if err != nil {
		return err
	}

	res := evt.Result
	switch evt.Kind {
	case gateway.EventCaptureCompleted:
		res.Status = gateway.StatusCompleted
	case gateway.EventCaptureFailed:
		if !res.Status.Final() || res.Status == gateway.StatusCompleted {
			res.Status = gateway.StatusFailed
		}
	case gateway.EventRefunded:
		logger.Info("Gateway reported a refund", "gateway", method, "externalID", txn.ExternalID, "bookingID", b.ID)
		return nil
	default:
		return nil
	}
	_, err = s.record(ctx, b, txn, txn.PaymentType, &res)
	return err
}

func (s *paymentService) ListTransactions(ctx context.Context, userID, bookingID string) ([]*domain.PaymentTransaction, error) {
	b, err := ownedBooking(ctx, s.bookings, userID, bookingID)
	if err != nil {
		return nil, err
	}
	return s.txns.ListByBooking(ctx, b.ID)
}
