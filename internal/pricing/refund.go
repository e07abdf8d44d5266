package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
)

// RefundDecision is the outcome of the cancellation policy together with the
// reasoning shown to the guest.
type RefundDecision struct {
	Percentage       int             `json:"percentage"`
	Amount           decimal.Decimal `json:"amount"`
	DaysUntilCheckIn int             `json:"days_until_checkin"`
	PolicyApplied    string          `json:"policy_applied"`
}

// RefundPolicy maps days until check-in to a refund percentage of total.
// Processing fees are not modeled.
func RefundPolicy(total decimal.Decimal, plan domain.PaymentPlan, daysUntilCheckIn int) RefundDecision {
	var pct int
	var policy string
	switch {
	case daysUntilCheckIn >= 30:
		pct = 100
		policy = "full refund for cancellations 30 or more days before check-in"
	case daysUntilCheckIn >= 7:
		pct = 50
		policy = "50% refund for cancellations 7 to 29 days before check-in"
	case plan == domain.PaymentPlanDeposit:
		pct = 0
		policy = "deposit forfeited for cancellations less than 7 days before check-in"
	default:
		pct = 50
		policy = "50% refund for cancellations less than 7 days before check-in"
	}

	return RefundDecision{
		Percentage:       pct,
		Amount:           share(total, pct),
		DaysUntilCheckIn: daysUntilCheckIn,
		PolicyApplied:    fmt.Sprintf("%s (%d days until check-in)", policy, daysUntilCheckIn),
	}
}
