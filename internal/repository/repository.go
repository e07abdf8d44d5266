package repository

import (
	"context"
	"errors"
	"time"

	"staybook-backend/internal/domain"
)

// ErrDuplicate is returned when an insert hits a unique constraint
var ErrDuplicate = errors.New("duplicate record")

// ErrPromoExhausted is returned when a write that redeems a promo code finds
// the code inactive or at its usage limit. The write is rolled back.
var ErrPromoExhausted = errors.New("promo code usage limit reached")

type RoomRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Room, error)
}

type BookingRepository interface {
	// CreateIfAvailable locks the room row, counts overlapping pending and
	// confirmed bookings, and inserts b only while the count is below the
	// room's total_rooms. When promoID is set the promo's usage count is
	// incremented in the same transaction. All steps commit together.
	CreateIfAvailable(ctx context.Context, b *domain.Booking, promoID string) error
	// RescheduleIfAvailable is the modification counterpart of
	// CreateIfAvailable; the booking itself is excluded from the count and
	// the write only applies while the booking is still in b.Status.
	RescheduleIfAvailable(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByNumber(ctx context.Context, bookingNumber string) (*domain.Booking, error)

	// UpdateStatus is a compare-and-set on status; a booking no longer in
	// from yields domain.ErrConflict.
	UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus) error
	UpdatePayment(ctx context.Context, id string, status domain.PaymentStatus, escrow domain.EscrowStatus) error
	// UpdatePricing writes a repriced snapshot while the booking is pending
	// and has no promo code yet, redeeming promoID in the same transaction.
	UpdatePricing(ctx context.Context, id string, pricing domain.Pricing, promoID string) error
	// Close moves a booking from `from` to cancelled or rejected and stores
	// the cancellation record in the same guarded statement.
	Close(ctx context.Context, id string, from, to domain.BookingStatus, c *domain.Cancellation) error
	UpdateRefundStatus(ctx context.Context, id string, status domain.RefundStatus) error
	SetCalendarEventID(ctx context.Context, id, eventID string) error

	ListMilestoneDue(ctx context.Context) ([]domain.Booking, error)
	ListCheckingInBetween(ctx context.Context, from, to time.Time) ([]domain.Booking, error)
	// ListCompletable includes completed bookings whose escrow release did not finish
	ListCompletable(ctx context.Context, checkOutBefore time.Time) ([]domain.Booking, error)
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Booking, error)
	ListPendingRefunds(ctx context.Context) ([]domain.Booking, error)
	CountCompletedByUser(ctx context.Context, userID string) (int, error)
}

type TransactionRepository interface {
	// Create inserts a ledger row; a second row for the same gateway and
	// external id returns ErrDuplicate.
	Create(ctx context.Context, t *domain.PaymentTransaction) error
	GetByExternalID(ctx context.Context, gateway domain.PaymentMethod, externalID string) (*domain.PaymentTransaction, error)
	ListByBooking(ctx context.Context, bookingID string) ([]*domain.PaymentTransaction, error)
	// MarkCompleted settles a pending row, or upgrades a failed one after a
	// later successful capture. A row that is already completed yields ErrDuplicate.
	MarkCompleted(ctx context.Context, t *domain.PaymentTransaction) error
	MarkFailed(ctx context.Context, t *domain.PaymentTransaction) error
	ReleaseEscrow(ctx context.Context, id string, releasedAt time.Time) error
	RecordRefund(ctx context.Context, t *domain.PaymentTransaction) error
}

type PromoRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.PromoCode, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
