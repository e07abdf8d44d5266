// Package pricing holds the pure money rules for bookings: price breakdowns,
// installment schedules and the cancellation refund policy. Nothing in here
// touches storage or the clock.
package pricing

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)

	// TaxRate applies to the amount left after every discount
	TaxRate = decimal.RequireFromString("0.10")
	// StudentDiscountRate applies to the subtotal when the caller asserts eligibility
	StudentDiscountRate = decimal.RequireFromString("0.10")
	// FullPaymentDiscountRate is the prompt-payment discount on the full plan
	FullPaymentDiscountRate = decimal.RequireFromString("0.05")
)

// FullPaymentPerks are attached to full-plan bookings for display only
var FullPaymentPerks = []string{
	"Free airport pickup",
	"Complimentary breakfast",
	"Late checkout until 2 PM",
}

// HeldPromo is a promo discount carried over unchanged from an earlier pricing
type HeldPromo struct {
	Code   string
	Amount decimal.Decimal
}

// Input describes one pricing request
type Input struct {
	RoomRate        decimal.Decimal
	Nights          int
	RoomDiscountPct decimal.Decimal
	StudentEligible bool
	// Promo is evaluated against the amount left after room and student discounts.
	Promo *domain.PromoCode
	// HeldPromo is used instead of Promo when repricing a modified booking.
	HeldPromo *HeldPromo
	Plan      domain.PaymentPlan
}

// Round2 rounds half away from zero to cents
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// Nights is the ceiling of the day difference between check-in and check-out
func Nights(checkIn, checkOut time.Time) int {
	return int(math.Ceil(checkOut.Sub(checkIn).Hours() / 24))
}

// Price computes a full breakdown from scratch
func Price(in Input) domain.Pricing {
	subtotal := Round2(in.RoomRate.Mul(decimal.NewFromInt(int64(in.Nights))))
	p := domain.Pricing{
		RoomRate:        in.RoomRate,
		Nights:          in.Nights,
		Subtotal:        subtotal,
		RoomDiscountPct: in.RoomDiscountPct,
		RoomDiscount:    Round2(subtotal.Mul(in.RoomDiscountPct).Div(hundred)),
		StudentDiscount: decimal.Zero,
		PromoDiscount:   decimal.Zero,
	}
	if in.StudentEligible {
		p.StudentDiscount = Round2(subtotal.Mul(StudentDiscountRate))
	}

	beforePromo := nonNegative(subtotal.Sub(p.RoomDiscount).Sub(p.StudentDiscount))
	switch {
	case in.Promo != nil:
		p.PromoCode = in.Promo.Code
		p.PromoDiscount = in.Promo.CalculateDiscount(beforePromo)
	case in.HeldPromo != nil:
		p.PromoCode = in.HeldPromo.Code
		p.PromoDiscount = decimal.Min(in.HeldPromo.Amount, beforePromo)
	}

	return settle(p, in.Plan)
}

// Reprice applies promo to a stored breakdown, keeping its subtotal and the
// room and student discounts as they were.
func Reprice(stored domain.Pricing, promo *domain.PromoCode, plan domain.PaymentPlan) domain.Pricing {
	p := stored
	p.BonusPerks = nil
	p.PromoCode = promo.Code
	p.PromoDiscount = promo.CalculateDiscount(AmountBeforePromo(stored))
	return settle(p, plan)
}

// AmountBeforePromo is the subtotal after room and student discounts, the base promo codes apply to
func AmountBeforePromo(p domain.Pricing) decimal.Decimal {
	return nonNegative(p.Subtotal.Sub(p.RoomDiscount).Sub(p.StudentDiscount))
}

// settle fills taxable, tax and total from the subtotal and discounts
func settle(p domain.Pricing, plan domain.PaymentPlan) domain.Pricing {
	p.Taxable = nonNegative(p.Subtotal.Sub(p.Discounts()))
	p.Tax = Round2(p.Taxable.Mul(TaxRate))
	p.Total = Round2(p.Taxable.Add(p.Tax))
	p.FullPaymentDiscount = decimal.Zero

	if plan == domain.PaymentPlanFull {
		p.FullPaymentDiscount = Round2(p.Total.Mul(FullPaymentDiscountRate))
		p.Total = p.Total.Sub(p.FullPaymentDiscount)
		p.BonusPerks = append([]string(nil), FullPaymentPerks...)
	}
	return p
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
