package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
)

// Installment is one scheduled payment of a plan
type Installment struct {
	PaymentType domain.PaymentType `json:"payment_type"`
	Percentage  int                `json:"percentage"`
	Amount      decimal.Decimal    `json:"amount"`
	Due         string             `json:"due"`
}

// PaymentOption describes what a booking would cost under one plan
type PaymentOption struct {
	Plan         domain.PaymentPlan `json:"plan"`
	Total        decimal.Decimal    `json:"total"`
	AmountDueNow decimal.Decimal    `json:"amount_due_now"`
	Savings      decimal.Decimal    `json:"savings"`
	Installments []Installment      `json:"installments"`
	BonusPerks   []string           `json:"bonus_perks,omitempty"`
}

// Schedule splits total into the plan's installments. The last installment
// takes the remainder so the parts always sum to total.
func Schedule(plan domain.PaymentPlan, total decimal.Decimal, depositPct int) []Installment {
	switch plan {
	case domain.PaymentPlanDeposit:
		deposit := share(total, depositPct)
		return []Installment{
			{PaymentType: domain.PaymentTypeDeposit, Percentage: depositPct, Amount: deposit, Due: "at booking"},
			{PaymentType: domain.PaymentTypeBalance, Percentage: 100 - depositPct, Amount: total.Sub(deposit), Due: "at check-in"},
		}
	case domain.PaymentPlanMilestone:
		first := share(total, 50)
		second := share(total, 25)
		return []Installment{
			{PaymentType: domain.PaymentTypeMilestone1, Percentage: 50, Amount: first, Due: "at booking"},
			{PaymentType: domain.PaymentTypeMilestone2, Percentage: 25, Amount: second, Due: "7 days before check-in"},
			{PaymentType: domain.PaymentTypeMilestone3, Percentage: 25, Amount: total.Sub(first).Sub(second), Due: "at check-in"},
		}
	default:
		return []Installment{
			{PaymentType: domain.PaymentTypeFull, Percentage: 100, Amount: total, Due: "at booking"},
		}
	}
}

// AmountDue returns the amount owed for one installment of a plan
func AmountDue(plan domain.PaymentPlan, pt domain.PaymentType, total decimal.Decimal, depositPct int) (decimal.Decimal, error) {
	for _, inst := range Schedule(plan, total, depositPct) {
		if inst.PaymentType == pt {
			return inst.Amount, nil
		}
	}
	return decimal.Zero, domain.NewValidationError("payment_type", fmt.Sprintf("%s is not part of the %s plan", pt, plan))
}

// PaymentOptions lists every plan for a priced booking. p may have been
// priced under any plan; the full-plan discount is recomputed for each option.
func PaymentOptions(p domain.Pricing, depositPct int) []PaymentOption {
	base := p.Total.Add(p.FullPaymentDiscount)

	fullDiscount := Round2(base.Mul(FullPaymentDiscountRate))
	fullTotal := base.Sub(fullDiscount)

	options := make([]PaymentOption, 0, 3)
	for _, plan := range []domain.PaymentPlan{domain.PaymentPlanFull, domain.PaymentPlanDeposit, domain.PaymentPlanMilestone} {
		total, savings := base, decimal.Zero
		var perks []string
		if plan == domain.PaymentPlanFull {
			total, savings, perks = fullTotal, fullDiscount, FullPaymentPerks
		}
		installments := Schedule(plan, total, depositPct)
		options = append(options, PaymentOption{
			Plan:         plan,
			Total:        total,
			AmountDueNow: installments[0].Amount,
			Savings:      savings,
			Installments: installments,
			BonusPerks:   perks,
		})
	}
	return options
}

func share(total decimal.Decimal, pct int) decimal.Decimal {
	return Round2(total.Mul(decimal.NewFromInt(int64(pct))).Div(hundred))
}
