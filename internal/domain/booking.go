package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusRejected  BookingStatus = "rejected"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusRejected},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled, BookingStatusRejected},
}

// CanTransitionTo reports whether next is a legal successor of s
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// HoldsInventory reports whether a booking in this status occupies its room
func (s BookingStatus) HoldsInventory() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

type PaymentMethod string

const (
	PaymentMethodPayPal PaymentMethod = "paypal"
	PaymentMethodStripe PaymentMethod = "stripe"
	PaymentMethodBakong PaymentMethod = "bakong"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodPayPal, PaymentMethodStripe, PaymentMethodBakong:
		return true
	}
	return false
}

type PaymentPlan string

const (
	PaymentPlanDeposit   PaymentPlan = "deposit"
	PaymentPlanMilestone PaymentPlan = "milestone"
	PaymentPlanFull      PaymentPlan = "full"
)

func (p PaymentPlan) Valid() bool {
	switch p {
	case PaymentPlanDeposit, PaymentPlanMilestone, PaymentPlanFull:
		return true
	}
	return false
}

// FirstObligation is the payment type whose capture confirms a pending booking
func (p PaymentPlan) FirstObligation() PaymentType {
	switch p {
	case PaymentPlanDeposit:
		return PaymentTypeDeposit
	case PaymentPlanMilestone:
		return PaymentTypeMilestone1
	default:
		return PaymentTypeFull
	}
}

// Installments lists the payment types a plan is collected through, in order
func (p PaymentPlan) Installments() []PaymentType {
	switch p {
	case PaymentPlanDeposit:
		return []PaymentType{PaymentTypeDeposit, PaymentTypeBalance}
	case PaymentPlanMilestone:
		return []PaymentType{PaymentTypeMilestone1, PaymentTypeMilestone2, PaymentTypeMilestone3}
	default:
		return []PaymentType{PaymentTypeFull}
	}
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPartial   PaymentStatus = "partial"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type RefundStatus string

const (
	RefundStatusNotApplicable RefundStatus = "not_applicable"
	RefundStatusNoRefund      RefundStatus = "no_refund"
	RefundStatusPending       RefundStatus = "pending"
	RefundStatusProcessed     RefundStatus = "processed"
	RefundStatusFailed        RefundStatus = "failed"
)

type Guests struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

type GuestDetails struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

// Pricing is the price snapshot stored with a booking at creation time.
// Later operations recompute from these stored amounts instead of live room rates.
type Pricing struct {
	RoomRate            decimal.Decimal `json:"room_rate"`
	Nights              int             `json:"nights"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	RoomDiscountPct     decimal.Decimal `json:"room_discount_pct"`
	RoomDiscount        decimal.Decimal `json:"room_discount"`
	StudentDiscount     decimal.Decimal `json:"student_discount"`
	PromoCode           string          `json:"promo_code,omitempty"`
	PromoDiscount       decimal.Decimal `json:"promo_discount"`
	Taxable             decimal.Decimal `json:"taxable"`
	Tax                 decimal.Decimal `json:"tax"`
	FullPaymentDiscount decimal.Decimal `json:"full_payment_discount"`
	Total               decimal.Decimal `json:"total"`
	BonusPerks          []string        `json:"bonus_perks,omitempty"`
}

// Discounts sums every discount applied before tax
func (p Pricing) Discounts() decimal.Decimal {
	return p.RoomDiscount.Add(p.StudentDiscount).Add(p.PromoDiscount)
}

// Payment is the payment section of a booking. Transactions is derived from
// the ledger when the booking is loaded and is never written directly.
type Payment struct {
	Method       PaymentMethod        `json:"method"`
	Plan         PaymentPlan          `json:"plan"`
	Status       PaymentStatus        `json:"status"`
	EscrowStatus EscrowStatus         `json:"escrow_status"`
	Transactions []TransactionSummary `json:"transactions"`
}

// Cancellation is written once, together with the cancelled status.
// RefundStatus is the only field that advances afterwards.
type Cancellation struct {
	CancelledAt      time.Time       `json:"cancelled_at"`
	Reason           string          `json:"reason"`
	RefundAmount     decimal.Decimal `json:"refund_amount"`
	RefundPercentage int             `json:"refund_percentage"`
	// PolicyAmount is what the policy grants before capping at the captured total
	PolicyAmount     decimal.Decimal `json:"policy_amount"`
	RefundStatus     RefundStatus    `json:"refund_status"`
	DaysUntilCheckIn int             `json:"days_until_checkin"`
	PolicyApplied    string          `json:"policy_applied"`
}

type Booking struct {
	ID              string        `json:"id"`
	BookingNumber   string        `json:"booking_number"`
	UserID          string        `json:"user_id"`
	HotelID         string        `json:"hotel_id"`
	RoomID          string        `json:"room_id"`
	CheckIn         time.Time     `json:"check_in"`
	CheckOut        time.Time     `json:"check_out"`
	Guests          Guests        `json:"guests"`
	GuestDetails    GuestDetails  `json:"guest_details"`
	StudentDiscount bool          `json:"student_discount_applied"`
	Pricing         Pricing       `json:"pricing"`
	Payment         Payment       `json:"payment"`
	Status          BookingStatus `json:"status"`
	Cancellation    *Cancellation `json:"cancellation,omitempty"`
	CalendarEventID string        `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Transition moves the booking to next when the state machine allows it
func (b *Booking) Transition(next BookingStatus) error {
	if !b.Status.CanTransitionTo(next) {
		return Conflictf("booking %s cannot move from %s to %s", b.BookingNumber, b.Status, next)
	}
	b.Status = next
	return nil
}

// DaysUntilCheckIn rounds the remaining time up to whole days
func (b *Booking) DaysUntilCheckIn(now time.Time) int {
	return int(math.Ceil(b.CheckIn.Sub(now).Hours() / 24))
}

func (b *Booking) HoursUntilCheckIn(now time.Time) float64 {
	return b.CheckIn.Sub(now).Hours()
}

// CanModify enforces the state and the cutoff window for date or guest changes
func (b *Booking) CanModify(now time.Time, cutoffHours int) error {
	if !b.Status.HoldsInventory() {
		return Conflictf("booking in status %s cannot be modified", b.Status)
	}
	if b.HoursUntilCheckIn(now) < float64(cutoffHours) {
		return Conflictf("bookings cannot be modified within %d hours of check-in", cutoffHours)
	}
	return nil
}

// CanApplyPromo allows exactly one promo code while the booking is pending
func (b *Booking) CanApplyPromo() error {
	if b.Status != BookingStatusPending {
		return Conflictf("promo codes can only be applied to pending bookings")
	}
	if b.Pricing.PromoCode != "" {
		return Conflictf("promo code %s already applied", b.Pricing.PromoCode)
	}
	return nil
}

// Overlaps uses half-open [checkIn, checkOut) intervals, so a checkout and a
// check-in on the same day do not collide.
func Overlaps(aIn, aOut, bIn, bOut time.Time) bool {
	return aIn.Before(bOut) && aOut.After(bIn)
}

// NewBookingNumber returns a human readable reference such as BK-20260115-9F3A21C0
func NewBookingNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "BK-" + now.UTC().Format("20060102") + "-" + suffix
}
