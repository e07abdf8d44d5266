package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook-backend/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s got %s", want, got.StringFixed(2)}, msgAndArgs...)...)
}

func TestPrice_FullPlanScenario(t *testing.T) {
	p := Price(Input{
		RoomRate:        dec("100"),
		Nights:          3,
		RoomDiscountPct: dec("10"),
		Plan:            domain.PaymentPlanFull,
	})

	assertMoney(t, "300", p.Subtotal)
	assertMoney(t, "30", p.RoomDiscount)
	assertMoney(t, "0", p.StudentDiscount)
	assertMoney(t, "270", p.Taxable)
	assertMoney(t, "27", p.Tax)
	assertMoney(t, "14.85", p.FullPaymentDiscount)
	assertMoney(t, "282.15", p.Total)
	assert.NotEmpty(t, p.BonusPerks)
}

func TestPrice_Discounts(t *testing.T) {
	t.Run("student and promo", func(t *testing.T) {
		promo := &domain.PromoCode{Code: "SAVE20", DiscountType: domain.DiscountTypeFixed, DiscountValue: dec("20")}
		p := Price(Input{
			RoomRate:        dec("80"),
			Nights:          2,
			StudentEligible: true,
			Promo:           promo,
			Plan:            domain.PaymentPlanDeposit,
		})
		assertMoney(t, "160", p.Subtotal)
		assertMoney(t, "16", p.StudentDiscount)
		assertMoney(t, "20", p.PromoDiscount)
		assert.Equal(t, "SAVE20", p.PromoCode)
		assertMoney(t, "124", p.Taxable)
		assertMoney(t, "12.4", p.Tax)
		assertMoney(t, "136.4", p.Total)
		assertMoney(t, "0", p.FullPaymentDiscount)
		assert.Empty(t, p.BonusPerks)
	})

	t.Run("promo evaluated after other discounts", func(t *testing.T) {
		promo := &domain.PromoCode{Code: "MIN250", DiscountType: domain.DiscountTypeFixed, DiscountValue: dec("10"), MinBookingAmount: dec("250")}
		p := Price(Input{RoomRate: dec("100"), Nights: 3, RoomDiscountPct: dec("20"), Promo: promo, Plan: domain.PaymentPlanDeposit})
		// 300 - 60 = 240 is below the minimum
		assertMoney(t, "0", p.PromoDiscount)
	})

	t.Run("held promo clamps to remaining amount", func(t *testing.T) {
		p := Price(Input{
			RoomRate:  dec("50"),
			Nights:    1,
			HeldPromo: &HeldPromo{Code: "BIG", Amount: dec("80")},
			Plan:      domain.PaymentPlanMilestone,
		})
		assertMoney(t, "50", p.PromoDiscount)
		assertMoney(t, "0", p.Taxable)
		assertMoney(t, "0", p.Total)
	})
}

func TestPrice_TotalIsRoundedTaxable(t *testing.T) {
	rates := []string{"99.99", "120.35", "45.10", "333.33", "0"}
	pcts := []string{"0", "7.5", "12", "100"}
	for _, rate := range rates {
		for _, pct := range pcts {
			for nights := 1; nights <= 4; nights++ {
				for _, student := range []bool{false, true} {
					p := Price(Input{RoomRate: dec(rate), Nights: nights, RoomDiscountPct: dec(pct), StudentEligible: student, Plan: domain.PaymentPlanDeposit})
					want := Round2(p.Taxable.Mul(dec("1.10")))
					assert.True(t, want.Equal(p.Total), "rate=%s pct=%s nights=%d", rate, pct, nights)
					assert.False(t, p.Total.IsNegative())
				}
			}
		}
	}
}

func TestReprice_KeepsStoredDiscounts(t *testing.T) {
	stored := Price(Input{RoomRate: dec("100"), Nights: 3, RoomDiscountPct: dec("10"), StudentEligible: true, Plan: domain.PaymentPlanFull})
	promo := &domain.PromoCode{Code: "TEN", DiscountType: domain.DiscountTypePercentage, DiscountValue: dec("10")}

	p := Reprice(stored, promo, domain.PaymentPlanFull)

	assertMoney(t, "30", p.RoomDiscount)
	assertMoney(t, "30", p.StudentDiscount)
	assertMoney(t, "24", p.PromoDiscount)
	assertMoney(t, "216", p.Taxable)
	assertMoney(t, "21.6", p.Tax)
	// 237.60 less 5% (11.88)
	assertMoney(t, "225.72", p.Total)
	assert.Equal(t, "TEN", p.PromoCode)
}

func TestNights(t *testing.T) {
	in := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, Nights(in, in.AddDate(0, 0, 3)))
	assert.Equal(t, 1, Nights(in, in.Add(2*time.Hour)))
}

func TestSchedule(t *testing.T) {
	t.Run("deposit", func(t *testing.T) {
		s := Schedule(domain.PaymentPlanDeposit, dec("300"), 50)
		require.Len(t, s, 2)
		assertMoney(t, "150", s[0].Amount)
		assertMoney(t, "150", s[1].Amount)
	})

	t.Run("milestones sum to total", func(t *testing.T) {
		s := Schedule(domain.PaymentPlanMilestone, dec("100.01"), 50)
		require.Len(t, s, 3)
		assertMoney(t, "50.01", s[0].Amount)
		assertMoney(t, "25", s[1].Amount)
		assertMoney(t, "25", s[2].Amount)
		assertMoney(t, "100.01", s[0].Amount.Add(s[1].Amount).Add(s[2].Amount))
	})

	t.Run("amount due outside plan", func(t *testing.T) {
		_, err := AmountDue(domain.PaymentPlanFull, domain.PaymentTypeDeposit, dec("100"), 50)
		assert.ErrorIs(t, err, domain.ErrValidation)

		due, err := AmountDue(domain.PaymentPlanDeposit, domain.PaymentTypeDeposit, dec("300"), 70)
		require.NoError(t, err)
		assertMoney(t, "210", due)
	})
}

func TestPaymentOptions(t *testing.T) {
	p := Price(Input{RoomRate: dec("100"), Nights: 3, RoomDiscountPct: dec("10"), Plan: domain.PaymentPlanDeposit})
	opts := PaymentOptions(p, 50)
	require.Len(t, opts, 3)

	assert.Equal(t, domain.PaymentPlanFull, opts[0].Plan)
	assertMoney(t, "282.15", opts[0].Total)
	assertMoney(t, "14.85", opts[0].Savings)
	assertMoney(t, "148.5", opts[1].AmountDueNow)
	assertMoney(t, "148.5", opts[2].AmountDueNow)
}

func TestRefundPolicy(t *testing.T) {
	tests := []struct {
		name string
		plan domain.PaymentPlan
		days int
		pct  int
		want string
	}{
		{"40 days deposit", domain.PaymentPlanDeposit, 40, 100, "300"},
		{"30 days", domain.PaymentPlanFull, 30, 100, "300"},
		{"10 days deposit", domain.PaymentPlanDeposit, 10, 50, "150"},
		{"7 days", domain.PaymentPlanMilestone, 7, 50, "150"},
		{"3 days deposit", domain.PaymentPlanDeposit, 3, 0, "0"},
		{"3 days full", domain.PaymentPlanFull, 3, 50, "150"},
		{"after check-in milestone", domain.PaymentPlanMilestone, -1, 50, "150"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := RefundPolicy(dec("300"), tt.plan, tt.days)
			assert.Equal(t, tt.pct, d.Percentage)
			assertMoney(t, tt.want, d.Amount)
			assert.Equal(t, tt.days, d.DaysUntilCheckIn)
			assert.NotEmpty(t, d.PolicyApplied)
		})
	}
}
