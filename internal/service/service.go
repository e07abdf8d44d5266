package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/gateway"
	"staybook-backend/internal/pricing"
)

// Policy holds the configurable booking rules shared by the services
type Policy struct {
	Currency          string
	DepositPercent    int
	PendingExpiry     time.Duration
	ModifyCutoffHours int
}

// DefaultPolicy mirrors the config defaults
func DefaultPolicy() Policy {
	return Policy{
		Currency:          "USD",
		DepositPercent:    50,
		PendingExpiry:     15 * time.Minute,
		ModifyCutoffHours: 48,
	}
}

// amountTolerance absorbs rounding when comparing captured amounts against amounts due
var amountTolerance = decimal.RequireFromString("0.01")

type CreateBookingRequest struct {
	UserID          string
	RoomID          string
	CheckIn         time.Time
	CheckOut        time.Time
	Adults          int
	Children        int
	GuestDetails    domain.GuestDetails
	PaymentMethod   domain.PaymentMethod
	PaymentPlan     domain.PaymentPlan
	PromoCode       string
	StudentEligible bool
}

type PaymentInfo struct {
	PaymentType    domain.PaymentType      `json:"payment_type"`
	AmountDue      decimal.Decimal         `json:"amount_due"`
	Currency       string                  `json:"currency"`
	Schedule       []pricing.Installment   `json:"schedule"`
	PaymentOptions []pricing.PaymentOption `json:"payment_options"`
}

type CreateBookingResult struct {
	Booking     *domain.Booking `json:"booking"`
	PaymentInfo PaymentInfo     `json:"payment_info"`
}

// ModifyBookingRequest carries optional changes; nil fields keep their stored values
type ModifyBookingRequest struct {
	UserID       string
	BookingID    string
	CheckIn      *time.Time
	CheckOut     *time.Time
	Adults       *int
	Children     *int
	GuestDetails *domain.GuestDetails
}

type PriceDirection string

const (
	PriceIncrease  PriceDirection = "increase"
	PriceDecrease  PriceDirection = "decrease"
	PriceUnchanged PriceDirection = "none"
)

type PriceChange struct {
	Direction     PriceDirection  `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	PreviousTotal decimal.Decimal `json:"previous_total"`
	NewTotal      decimal.Decimal `json:"new_total"`
}

type ModifyBookingResult struct {
	Booking     *domain.Booking `json:"booking"`
	PriceChange PriceChange     `json:"price_change"`
	Policy      string          `json:"policy"`
}

type ApplyPromoResult struct {
	Pricing domain.Pricing  `json:"pricing"`
	Savings decimal.Decimal `json:"savings"`
}

type CancellationDetails struct {
	RefundAmount     decimal.Decimal     `json:"refund_amount"`
	RefundPercentage int                 `json:"refund_percentage"`
	PolicyAmount     decimal.Decimal     `json:"policy_amount"`
	RefundStatus     domain.RefundStatus `json:"refund_status"`
	PolicyApplied    string              `json:"policy_applied"`
	DaysUntilCheckIn int                 `json:"days_until_checkin"`
}

type CancelBookingResult struct {
	Booking *domain.Booking     `json:"booking"`
	Details CancellationDetails `json:"cancellation_details"`
}

type BookingService interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error)
	// GetBooking returns domain.ErrNotFound for bookings owned by someone else
	GetBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error)
	ModifyBooking(ctx context.Context, req ModifyBookingRequest) (*ModifyBookingResult, error)
	ApplyPromo(ctx context.Context, userID, bookingID, code string) (*ApplyPromoResult, error)
	CancelBooking(ctx context.Context, userID, bookingID, reason string) (*CancelBookingResult, error)
	RejectBooking(ctx context.Context, bookingID, reason string) (*CancelBookingResult, error)
}

type PaymentIntent struct {
	TransactionID string               `json:"transaction_id"`
	Gateway       domain.PaymentMethod `json:"gateway"`
	ExternalID    string               `json:"external_id"`
	PaymentType   domain.PaymentType   `json:"payment_type"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	ClientPayload map[string]string    `json:"client_payload"`
}

type CaptureResult struct {
	Status      gateway.Status             `json:"status"`
	Transaction *domain.PaymentTransaction `json:"transaction,omitempty"`
	Booking     *domain.Booking            `json:"booking"`
}

type PaymentService interface {
	InitiatePayment(ctx context.Context, userID, bookingID string, pt domain.PaymentType) (*PaymentIntent, error)
	CapturePayment(ctx context.Context, userID, bookingID, externalID string, pt domain.PaymentType) (*CaptureResult, error)
	// VerifyBakongPayment polls the KHQR md5 until the payment settles or polling gives up
	VerifyBakongPayment(ctx context.Context, userID, bookingID, md5 string, pt domain.PaymentType) (*CaptureResult, error)
	// HandleWebhook only returns errors for deliveries that fail verification
	HandleWebhook(ctx context.Context, method domain.PaymentMethod, req gateway.WebhookRequest) error
	ListTransactions(ctx context.Context, userID, bookingID string) ([]*domain.PaymentTransaction, error)
}

// PromoSnapshot is what a promo code is evaluated against
type PromoSnapshot struct {
	ItemType domain.PromoScope
	ItemID   string
	// Amount is the price after every non-promo discount
	Amount decimal.Decimal
}

type AppliedPromo struct {
	Promo    *domain.PromoCode
	Discount decimal.Decimal
}

type PromoService interface {
	// Validate never counts a use. The booking repository redeems the code in
	// the same transaction that stores the discounted price.
	Validate(ctx context.Context, code string, snap PromoSnapshot, completedBookings int) (*AppliedPromo, error)
}

// SweepResult counts the bookings a sweep touched
type SweepResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type EscrowService interface {
	SendMilestoneReminders(ctx context.Context) (SweepResult, error)
	SendCheckInReminders(ctx context.Context) (SweepResult, error)
	CompleteStays(ctx context.Context) (SweepResult, error)
	ExpirePendingBookings(ctx context.Context) (SweepResult, error)
	RetryPendingRefunds(ctx context.Context) (SweepResult, error)
	ExpirePromoCodes(ctx context.Context) (SweepResult, error)
}

// RefundProcessor settles queued refunds. Returning an error asks the caller to retry later.
type RefundProcessor interface {
	Process(ctx context.Context, job domain.RefundJob) error
}

// Notifier delivers guest messages. Delivery failures never fail a booking operation.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, html string) error
	SendSMS(ctx context.Context, to, body string) error
}

type Calendar interface {
	CreateEvent(ctx context.Context, b *domain.Booking) (string, error)
	UpdateEvent(ctx context.Context, b *domain.Booking) error
	DeleteEvent(ctx context.Context, b *domain.Booking) error
}

type EventPublisher interface {
	PublishRefund(ctx context.Context, job domain.RefundJob) error
	PublishEvent(ctx context.Context, evt domain.BookingEvent) error
}

// WebhookClaimer records that a webhook delivery is being handled. Claim
// reports false when the key was already claimed.
type WebhookClaimer interface {
	Claim(ctx context.Context, key string) (bool, error)
}
