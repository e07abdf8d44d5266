package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentTypeDeposit    PaymentType = "deposit"
	PaymentTypeBalance    PaymentType = "balance"
	PaymentTypeMilestone1 PaymentType = "milestone_1"
	PaymentTypeMilestone2 PaymentType = "milestone_2"
	PaymentTypeMilestone3 PaymentType = "milestone_3"
	PaymentTypeFull       PaymentType = "full"
)

// BelongsTo reports whether t is one of plan's installments
func (t PaymentType) BelongsTo(plan PaymentPlan) bool {
	for _, p := range plan.Installments() {
		if p == t {
			return true
		}
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

type EscrowStatus string

const (
	EscrowStatusNone     EscrowStatus = "none"
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
)

// PaymentTransaction is one gateway interaction. Rows are never deleted.
type PaymentTransaction struct {
	ID                string            `json:"id"`
	BookingID         string            `json:"booking_id"`
	Gateway           PaymentMethod     `json:"gateway"`
	ExternalID        string            `json:"external_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	PaymentType       PaymentType       `json:"payment_type"`
	Status            TransactionStatus `json:"status"`
	EscrowStatus      EscrowStatus      `json:"escrow_status"`
	EscrowHeldAt      *time.Time        `json:"escrow_held_at,omitempty"`
	EscrowReleaseDate *time.Time        `json:"escrow_release_date,omitempty"`
	RefundAmount      decimal.Decimal   `json:"refund_amount"`
	RefundReason      string            `json:"refund_reason,omitempty"`
	RefundedAt        *time.Time        `json:"refunded_at,omitempty"`
	PayerEmail        string            `json:"payer_email,omitempty"`
	PayerName         string            `json:"payer_name,omitempty"`
	RawPayload        json.RawMessage   `json:"-"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// ReleaseEscrow pays a held capture out to the merchant
func (t *PaymentTransaction) ReleaseEscrow(now time.Time) error {
	if t.Status != TransactionStatusCompleted || t.EscrowStatus != EscrowStatusHeld {
		return Invariantf("transaction %s cannot release escrow from %s/%s", t.ExternalID, t.Status, t.EscrowStatus)
	}
	t.EscrowStatus = EscrowStatusReleased
	t.EscrowReleaseDate = &now
	return nil
}

// RefundEscrow returns amount of a held capture to the payer
func (t *PaymentTransaction) RefundEscrow(amount decimal.Decimal, reason string, now time.Time) error {
	if t.Status != TransactionStatusCompleted || t.EscrowStatus != EscrowStatusHeld {
		return Invariantf("transaction %s cannot be refunded from %s/%s", t.ExternalID, t.Status, t.EscrowStatus)
	}
	if reason == "" {
		return Invariantf("refund of %s requires a reason", t.ExternalID)
	}
	if amount.IsNegative() || amount.GreaterThan(t.Amount) {
		return Invariantf("refund %s exceeds captured amount %s", amount.StringFixed(2), t.Amount.StringFixed(2))
	}
	t.Status = TransactionStatusRefunded
	t.EscrowStatus = EscrowStatusRefunded
	t.RefundAmount = amount
	t.RefundReason = reason
	t.RefundedAt = &now
	return nil
}

// TransactionSummary is the compact per-transaction view embedded in Booking.Payment
type TransactionSummary struct {
	ID           string            `json:"id"`
	Gateway      PaymentMethod     `json:"gateway"`
	ExternalID   string            `json:"external_id"`
	PaymentType  PaymentType       `json:"payment_type"`
	Amount       decimal.Decimal   `json:"amount"`
	Status       TransactionStatus `json:"status"`
	EscrowStatus EscrowStatus      `json:"escrow_status"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Summarize derives the booking's transaction list from ledger rows, oldest first
func Summarize(txns []*PaymentTransaction) []TransactionSummary {
	out := make([]TransactionSummary, 0, len(txns))
	for _, t := range txns {
		out = append(out, TransactionSummary{
			ID:           t.ID,
			Gateway:      t.Gateway,
			ExternalID:   t.ExternalID,
			PaymentType:  t.PaymentType,
			Amount:       t.Amount,
			Status:       t.Status,
			EscrowStatus: t.EscrowStatus,
			CreatedAt:    t.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CapturedTotal sums amounts of completed captures
func CapturedTotal(txns []*PaymentTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		if t.Status == TransactionStatusCompleted {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// HasCompleted reports whether a completed capture of the given type exists
func HasCompleted(txns []*PaymentTransaction, pt PaymentType) bool {
	for _, t := range txns {
		if t.Status == TransactionStatusCompleted && t.PaymentType == pt {
			return true
		}
	}
	return false
}

// DeriveEscrowStatus computes the booking-level escrow state from its captures.
// Released requires every completed capture to be released.
func DeriveEscrowStatus(txns []*PaymentTransaction) EscrowStatus {
	var held, released, refunded int
	for _, t := range txns {
		if t.Status != TransactionStatusCompleted && t.Status != TransactionStatusRefunded {
			continue
		}
		switch t.EscrowStatus {
		case EscrowStatusHeld:
			held++
		case EscrowStatusReleased:
			released++
		case EscrowStatusRefunded:
			refunded++
		}
	}
	switch {
	case held > 0:
		return EscrowStatusHeld
	case refunded > 0:
		return EscrowStatusRefunded
	case released > 0:
		return EscrowStatusReleased
	default:
		return EscrowStatusNone
	}
}
