package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

type PromoScope string

const (
	PromoScopeAll    PromoScope = "all"
	PromoScopeHotels PromoScope = "hotels"
	PromoScopeTours  PromoScope = "tours"
	PromoScopeEvents PromoScope = "events"
)

type PromoUserType string

const (
	PromoUserTypeAll       PromoUserType = "all"
	PromoUserTypeNew       PromoUserType = "new"
	PromoUserTypeReturning PromoUserType = "returning"
)

type PromoCode struct {
	ID               string              `json:"id"`
	Code             string              `json:"code"`
	Description      string              `json:"description,omitempty"`
	DiscountType     DiscountType        `json:"discount_type"`
	DiscountValue    decimal.Decimal     `json:"discount_value"`
	MinBookingAmount decimal.Decimal     `json:"min_booking_amount"`
	MaxDiscount      decimal.NullDecimal `json:"max_discount"`
	ValidFrom        time.Time           `json:"valid_from"`
	ValidUntil       time.Time           `json:"valid_until"`
	UsageLimit       *int                `json:"usage_limit,omitempty"`
	UsageCount       int                 `json:"usage_count"`
	ApplicableTo     PromoScope          `json:"applicable_to"`
	ApplicableIDs    []string            `json:"applicable_ids,omitempty"`
	UserType         PromoUserType       `json:"user_type"`
	IsActive         bool                `json:"is_active"`
}

// NormalizeCode canonicalizes user input; codes are stored uppercase
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CalculateDiscount returns the discount this code grants on amount.
// Below the minimum booking amount the discount is zero.
func (p *PromoCode) CalculateDiscount(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() || amount.LessThan(p.MinBookingAmount) {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch p.DiscountType {
	case DiscountTypePercentage:
		discount = amount.Mul(p.DiscountValue).Div(decimal.NewFromInt(100))
		if p.MaxDiscount.Valid && discount.GreaterThan(p.MaxDiscount.Decimal) {
			discount = p.MaxDiscount.Decimal
		}
	case DiscountTypeFixed:
		discount = p.DiscountValue
	default:
		return decimal.Zero
	}

	if discount.GreaterThan(amount) {
		discount = amount
	}
	return discount.Round(2)
}

// UsageExhausted reports whether the usage limit has been reached
func (p *PromoCode) UsageExhausted() bool {
	return p.UsageLimit != nil && p.UsageCount >= *p.UsageLimit
}

// Expired is true once now is past valid_until
func (p *PromoCode) Expired(now time.Time) bool {
	return now.After(p.ValidUntil)
}

// AppliesTo checks the category scope and the optional id allow-list
func (p *PromoCode) AppliesTo(scope PromoScope, itemID string) bool {
	if p.ApplicableTo != PromoScopeAll && p.ApplicableTo != scope {
		return false
	}
	if len(p.ApplicableIDs) == 0 {
		return true
	}
	for _, id := range p.ApplicableIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// AcceptsUser enforces the new/returning customer restriction
func (p *PromoCode) AcceptsUser(completedBookings int) bool {
	switch p.UserType {
	case PromoUserTypeNew:
		return completedBookings == 0
	case PromoUserTypeReturning:
		return completedBookings >= 1
	default:
		return true
	}
}
