package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/pricing"
	"staybook-backend/internal/repository"
	"staybook-backend/internal/utils"
)

const modifyPolicy = "Dates and guests can be changed up to %d hours before check-in. " +
	"Price differences are settled separately; no automatic charge or refund is made."

type bookingService struct {
	rooms    repository.RoomRepository
	bookings repository.BookingRepository
	txns     repository.TransactionRepository
	promos   PromoService
	calendar Calendar
	events   EventPublisher
	notify   guestNotifier
	policy   Policy
	now      func() time.Time
}

func NewBookingService(
	rooms repository.RoomRepository,
	bookings repository.BookingRepository,
	txns repository.TransactionRepository,
	promos PromoService,
	notifier Notifier,
	cal Calendar,
	events EventPublisher,
	policy Policy,
) BookingService {
	if cal == nil {
		cal = noopCalendar{}
	}
	return &bookingService{
		rooms:    rooms,
		bookings: bookings,
		txns:     txns,
		promos:   promos,
		calendar: cal,
		events:   events,
		notify:   guestNotifier{notifier: notifier},
		policy:   policy,
		now:      time.Now,
	}
}

func validateStay(checkIn, checkOut time.Time, adults, children int, today time.Time) []domain.FieldError {
	var fields []domain.FieldError
	switch {
	case checkIn.IsZero():
		fields = append(fields, domain.FieldError{Field: "check_in", Message: "is required"})
	case checkIn.Before(today):
		fields = append(fields, domain.FieldError{Field: "check_in", Message: "must not be in the past"})
	}
	if checkOut.IsZero() {
		fields = append(fields, domain.FieldError{Field: "check_out", Message: "is required"})
	} else if !checkOut.After(checkIn) {
		fields = append(fields, domain.FieldError{Field: "check_out", Message: "must be after check_in"})
	}
	if adults < 1 {
		fields = append(fields, domain.FieldError{Field: "adults", Message: "at least one adult is required"})
	}
	if children < 0 {
		fields = append(fields, domain.FieldError{Field: "children", Message: "must not be negative"})
	}
	return fields
}

func validateGuest(g domain.GuestDetails) []domain.FieldError {
	var fields []domain.FieldError
	if strings.TrimSpace(g.Name) == "" {
		fields = append(fields, domain.FieldError{Field: "guest_details.name", Message: "is required"})
	}
	if _, err := mail.ParseAddress(g.Email); err != nil {
		fields = append(fields, domain.FieldError{Field: "guest_details.email", Message: "must be a valid email address"})
	}
	if strings.TrimSpace(g.Phone) == "" {
		fields = append(fields, domain.FieldError{Field: "guest_details.phone", Message: "is required"})
	}
	return fields
}

func (s *bookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error) {
	logger.EnterMethod("bookingService.CreateBooking", "userID", req.UserID, "roomID", req.RoomID, "plan", req.PaymentPlan, "method", req.PaymentMethod)

	now := s.now()
	fields := validateStay(req.CheckIn, req.CheckOut, req.Adults, req.Children, utils.StartOfDay(now))
	fields = append(fields, validateGuest(req.GuestDetails)...)
	if req.RoomID == "" {
		fields = append(fields, domain.FieldError{Field: "room_id", Message: "is required"})
	}
	if !req.PaymentMethod.Valid() {
		fields = append(fields, domain.FieldError{Field: "payment_method", Message: "must be one of paypal, stripe, bakong"})
	}
	if !req.PaymentPlan.Valid() {
		fields = append(fields, domain.FieldError{Field: "payment_plan", Message: "must be one of deposit, milestone, full"})
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}

	room, err := s.rooms.GetByID(ctx, req.RoomID)
	if err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "roomID", req.RoomID)
		return nil, err
	}
	if !room.Fits(req.Adults, req.Children) {
		return nil, domain.NewValidationError("guests", fmt.Sprintf("room %s holds at most %d adults and %d children", room.Name, room.MaxAdults, room.MaxChildren))
	}

	in := pricing.Input{
		RoomRate:        room.PricePerNight,
		Nights:          pricing.Nights(req.CheckIn, req.CheckOut),
		RoomDiscountPct: room.DiscountPct,
		StudentEligible: req.StudentEligible,
		Plan:            req.PaymentPlan,
	}

	var applied *AppliedPromo
	if strings.TrimSpace(req.PromoCode) != "" {
		completed, err := s.bookings.CountCompletedByUser(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		snap := PromoSnapshot{
			ItemType: domain.PromoScopeHotels,
			ItemID:   room.HotelID,
			Amount:   pricing.AmountBeforePromo(pricing.Price(in)),
		}
		if applied, err = s.promos.Validate(ctx, req.PromoCode, snap, completed); err != nil {
			return nil, err
		}
		in.Promo = applied.Promo
	}

	b := &domain.Booking{
		ID:              uuid.NewString(),
		BookingNumber:   domain.NewBookingNumber(now),
		UserID:          req.UserID,
		HotelID:         room.HotelID,
		RoomID:          room.ID,
		CheckIn:         req.CheckIn,
		CheckOut:        req.CheckOut,
		Guests:          domain.Guests{Adults: req.Adults, Children: req.Children},
		GuestDetails:    req.GuestDetails,
		StudentDiscount: req.StudentEligible,
		Pricing:         pricing.Price(in),
		Payment: domain.Payment{
			Method:       req.PaymentMethod,
			Plan:         req.PaymentPlan,
			Status:       domain.PaymentStatusPending,
			EscrowStatus: domain.EscrowStatusNone,
			Transactions: []domain.TransactionSummary{},
		},
		Status:    domain.BookingStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.bookings.CreateIfAvailable(ctx, b, applied.promoID()); err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "roomID", req.RoomID)
		return nil, redeemError(applied, err)
	}

	s.createCalendarEvent(ctx, b)
	info := s.paymentInfo(b)
	s.notify.send(ctx, b, bookingCreatedEmail(b, info))
	publishEvent(ctx, s.events, domain.NewBookingEvent(domain.BookingEventCreated, b, now))

	logger.ExitMethod("bookingService.CreateBooking", "bookingID", b.ID, "bookingNumber", b.BookingNumber, "total", b.Pricing.Total.String())
	return &CreateBookingResult{Booking: b, PaymentInfo: info}, nil
}

func (s *bookingService) paymentInfo(b *domain.Booking) PaymentInfo {
	first := b.Payment.Plan.FirstObligation()
	due, _ := pricing.AmountDue(b.Payment.Plan, first, b.Pricing.Total, s.policy.DepositPercent)
	return PaymentInfo{
		PaymentType:    first,
		AmountDue:      due,
		Currency:       s.policy.Currency,
		Schedule:       pricing.Schedule(b.Payment.Plan, b.Pricing.Total, s.policy.DepositPercent),
		PaymentOptions: pricing.PaymentOptions(b.Pricing, s.policy.DepositPercent),
	}
}

func (s *bookingService) createCalendarEvent(ctx context.Context, b *domain.Booking) {
	eventID, err := s.calendar.CreateEvent(ctx, b)
	if err != nil {
		logger.Warn("Calendar sync failed", "bookingNumber", b.BookingNumber, "error", err)
		return
	}
	if eventID == "" {
		return
	}
	b.CalendarEventID = eventID
	if err := s.bookings.SetCalendarEventID(ctx, b.ID, eventID); err != nil {
		logger.Warn("Failed to store calendar event id", "bookingNumber", b.BookingNumber, "error", err)
	}
}

// ownedBooking loads a booking for userID. Bookings owned by someone else are reported as missing.
func ownedBooking(ctx context.Context, bookings repository.BookingRepository, userID, bookingID string) (*domain.Booking, error) {
	b, err := bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, domain.NotFoundf("booking %s", bookingID)
	}
	return b, nil
}

func (s *bookingService) owned(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	return ownedBooking(ctx, s.bookings, userID, bookingID)
}

func (s *bookingService) GetBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	b, err := s.owned(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	txns, err := s.txns.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Payment.Transactions = domain.Summarize(txns)
	return b, nil
}

func (s *bookingService) ModifyBooking(ctx context.Context, req ModifyBookingRequest) (*ModifyBookingResult, error) {
	logger.EnterMethod("bookingService.ModifyBooking", "userID", req.UserID, "bookingID", req.BookingID)

	b, err := s.owned(ctx, req.UserID, req.BookingID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := b.CanModify(now, s.policy.ModifyCutoffHours); err != nil {
		return nil, err
	}

	previousTotal := b.Pricing.Total
	if req.CheckIn != nil {
		b.CheckIn = *req.CheckIn
	}
	if req.CheckOut != nil {
		b.CheckOut = *req.CheckOut
	}
	if req.Adults != nil {
		b.Guests.Adults = *req.Adults
	}
	if req.Children != nil {
		b.Guests.Children = *req.Children
	}
	fields := validateStay(b.CheckIn, b.CheckOut, b.Guests.Adults, b.Guests.Children, utils.StartOfDay(now))
	if req.GuestDetails != nil {
		b.GuestDetails = *req.GuestDetails
		fields = append(fields, validateGuest(b.GuestDetails)...)
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}

	room, err := s.rooms.GetByID(ctx, b.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.Fits(b.Guests.Adults, b.Guests.Children) {
		return nil, domain.NewValidationError("guests", fmt.Sprintf("room %s holds at most %d adults and %d children", room.Name, room.MaxAdults, room.MaxChildren))
	}

	// Reprice from the stored snapshot; student eligibility and any promo
	// amount stay as they were when the booking was made.
	in := pricing.Input{
		RoomRate:        b.Pricing.RoomRate,
		Nights:          pricing.Nights(b.CheckIn, b.CheckOut),
		RoomDiscountPct: b.Pricing.RoomDiscountPct,
		StudentEligible: b.StudentDiscount,
		Plan:            b.Payment.Plan,
	}
	if b.Pricing.PromoCode != "" {
		in.HeldPromo = &pricing.HeldPromo{Code: b.Pricing.PromoCode, Amount: b.Pricing.PromoDiscount}
	}
	b.Pricing = pricing.Price(in)
	b.UpdatedAt = now

	if err := s.bookings.RescheduleIfAvailable(ctx, b); err != nil {
		logger.ExitMethodWithError("bookingService.ModifyBooking", err, "bookingID", b.ID)
		return nil, err
	}

	change := priceChange(previousTotal, b.Pricing.Total)
	if err := s.calendar.UpdateEvent(ctx, b); err != nil {
		logger.Warn("Calendar update failed", "bookingNumber", b.BookingNumber, "error", err)
	}
	s.notify.send(ctx, b, bookingModifiedEmail(b, change, s.policy.Currency))
	publishEvent(ctx, s.events, domain.NewBookingEvent(domain.BookingEventModified, b, now))

	logger.ExitMethod("bookingService.ModifyBooking", "bookingID", b.ID, "direction", change.Direction, "amount", change.Amount.String())
	return &ModifyBookingResult{
		Booking:     b,
		PriceChange: change,
		Policy:      fmt.Sprintf(modifyPolicy, s.policy.ModifyCutoffHours),
	}, nil
}

func priceChange(previous, next decimal.Decimal) PriceChange {
	c := PriceChange{PreviousTotal: previous, NewTotal: next, Direction: PriceUnchanged, Amount: decimal.Zero}
	switch diff := next.Sub(previous); {
	case diff.IsPositive():
		c.Direction, c.Amount = PriceIncrease, diff
	case diff.IsNegative():
		c.Direction, c.Amount = PriceDecrease, diff.Neg()
	}
	return c
}

func (s *bookingService) ApplyPromo(ctx context.Context, userID, bookingID, code string) (*ApplyPromoResult, error) {
	logger.EnterMethod("bookingService.ApplyPromo", "bookingID", bookingID, "code", code)

	b, err := s.owned(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if err := b.CanApplyPromo(); err != nil {
		return nil, err
	}

	completed, err := s.bookings.CountCompletedByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	applied, err := s.promos.Validate(ctx, code, PromoSnapshot{
		ItemType: domain.PromoScopeHotels,
		ItemID:   b.HotelID,
		Amount:   pricing.AmountBeforePromo(b.Pricing),
	}, completed)
	if err != nil {
		return nil, err
	}

	repriced := pricing.Reprice(b.Pricing, applied.Promo, b.Payment.Plan)
	if err := s.bookings.UpdatePricing(ctx, b.ID, repriced, applied.promoID()); err != nil {
		logger.ExitMethodWithError("bookingService.ApplyPromo", err, "bookingID", b.ID)
		return nil, redeemError(applied, err)
	}

	savings := b.Pricing.Total.Sub(repriced.Total)
	logger.ExitMethod("bookingService.ApplyPromo", "bookingID", b.ID, "savings", savings.String())
	return &ApplyPromoResult{Pricing: repriced, Savings: savings}, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, userID, bookingID, reason string) (*CancelBookingResult, error) {
	logger.EnterMethod("bookingService.CancelBooking", "userID", userID, "bookingID", bookingID)

	b, err := s.owned(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by guest"
	}
	return s.close(ctx, b, domain.BookingStatusCancelled, reason, func(captured decimal.Decimal, days int) pricing.RefundDecision {
		return pricing.RefundPolicy(b.Pricing.Total, b.Payment.Plan, days)
	})
}

// RejectBooking is the admin path; everything captured so far is refunded
func (s *bookingService) RejectBooking(ctx context.Context, bookingID, reason string) (*CancelBookingResult, error) {
	logger.EnterMethod("bookingService.RejectBooking", "bookingID", bookingID)

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "rejected by property"
	}
	return s.close(ctx, b, domain.BookingStatusRejected, reason, func(captured decimal.Decimal, days int) pricing.RefundDecision {
		return pricing.RefundDecision{
			Percentage:       100,
			Amount:           captured,
			DaysUntilCheckIn: days,
			PolicyApplied:    "full refund of every captured payment for a rejected booking",
		}
	})
}

type refundRule func(captured decimal.Decimal, daysUntilCheckIn int) pricing.RefundDecision

// close writes the cancellation record together with the status change. The
// refund itself is queued; the gateway is never called from here.
func (s *bookingService) close(ctx context.Context, b *domain.Booking, to domain.BookingStatus, reason string, rule refundRule) (*CancelBookingResult, error) {
	if !b.Status.CanTransitionTo(to) {
		return nil, domain.Conflictf("booking %s cannot move from %s to %s", b.BookingNumber, b.Status, to)
	}

	txns, err := s.txns.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	captured := domain.CapturedTotal(txns)
	decision := rule(captured, b.DaysUntilCheckIn(now))
	amount := decimal.Min(decision.Amount, captured)

	refundStatus := domain.RefundStatusPending
	switch {
	case captured.IsZero():
		refundStatus = domain.RefundStatusNotApplicable
	case amount.IsZero():
		refundStatus = domain.RefundStatusNoRefund
	}

	c := &domain.Cancellation{
		CancelledAt:      now,
		Reason:           reason,
		RefundAmount:     amount,
		RefundPercentage: decision.Percentage,
		PolicyAmount:     decision.Amount,
		RefundStatus:     refundStatus,
		DaysUntilCheckIn: decision.DaysUntilCheckIn,
		PolicyApplied:    decision.PolicyApplied,
	}
	if err := s.bookings.Close(ctx, b.ID, b.Status, to, c); err != nil {
		logger.ExitMethodWithError("bookingService.close", err, "bookingID", b.ID)
		return nil, err
	}
	b.Status = to
	b.Cancellation = c
	b.UpdatedAt = now

	switch refundStatus {
	case domain.RefundStatusPending:
		enqueueRefund(ctx, s.events, domain.RefundJob{BookingID: b.ID, Reason: reason, RequestedAt: now})
	case domain.RefundStatusNoRefund:
		s.releaseForfeited(ctx, b, txns, now)
	}
	b.Payment.Transactions = domain.Summarize(txns)

	if err := s.calendar.DeleteEvent(ctx, b); err != nil {
		logger.Warn("Calendar delete failed", "bookingNumber", b.BookingNumber, "error", err)
	}
	details := CancellationDetails{
		RefundAmount:     c.RefundAmount,
		RefundPercentage: c.RefundPercentage,
		PolicyAmount:     c.PolicyAmount,
		RefundStatus:     c.RefundStatus,
		PolicyApplied:    c.PolicyApplied,
		DaysUntilCheckIn: c.DaysUntilCheckIn,
	}
	s.notify.send(ctx, b, bookingCancelledEmail(b, details, s.policy.Currency))
	evt := domain.BookingEventCancelled
	if to == domain.BookingStatusRejected {
		evt = domain.BookingEventRejected
	}
	publishEvent(ctx, s.events, domain.NewBookingEvent(evt, b, now))

	logger.ExitMethod("bookingService.close", "bookingID", b.ID, "status", to, "refundStatus", refundStatus, "refundAmount", amount.String())
	return &CancelBookingResult{Booking: b, Details: details}, nil
}

// releaseForfeited pays held captures out to the merchant when the policy refunds nothing
func (s *bookingService) releaseForfeited(ctx context.Context, b *domain.Booking, txns []*domain.PaymentTransaction, now time.Time) {
	for _, t := range txns {
		if t.Status != domain.TransactionStatusCompleted || t.EscrowStatus != domain.EscrowStatusHeld {
			continue
		}
		if err := s.txns.ReleaseEscrow(ctx, t.ID, now); err != nil {
			logger.Error("Failed to release forfeited escrow", "bookingID", b.ID, "transactionID", t.ID, "error", err)
			continue
		}
		_ = t.ReleaseEscrow(now)
	}
	b.Payment.EscrowStatus = domain.DeriveEscrowStatus(txns)
	if err := s.bookings.UpdatePayment(ctx, b.ID, b.Payment.Status, b.Payment.EscrowStatus); err != nil {
		logger.Error("Failed to update booking escrow status", "bookingID", b.ID, "error", err)
	}
}

func publishEvent(ctx context.Context, pub EventPublisher, evt domain.BookingEvent) {
	if pub == nil {
		return
	}
	if err := pub.PublishEvent(ctx, evt); err != nil {
		logger.Warn("Failed to publish booking event", "type", evt.Type, "bookingID", evt.BookingID, "error", err)
	}
}

// enqueueRefund is best effort; the retry sweep re-publishes refunds still pending
func enqueueRefund(ctx context.Context, pub EventPublisher, job domain.RefundJob) {
	if pub == nil {
		logger.Warn("No refund queue configured, refund left for the retry sweep", "bookingID", job.BookingID)
		return
	}
	if err := pub.PublishRefund(ctx, job); err != nil {
		logger.Error("Failed to enqueue refund", "bookingID", job.BookingID, "error", err)
	}
}
