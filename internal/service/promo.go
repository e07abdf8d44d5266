package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/repository"
)

type PromoRejectionReason string

// Rejection reasons in the order they are checked
const (
	PromoNotFound           PromoRejectionReason = "not_found"
	PromoInactive           PromoRejectionReason = "inactive"
	PromoNotYetValid        PromoRejectionReason = "not_yet_valid"
	PromoExpired            PromoRejectionReason = "expired"
	PromoUsageLimitReached  PromoRejectionReason = "usage_limit_reached"
	PromoNotApplicable      PromoRejectionReason = "not_applicable"
	PromoBelowMinimumAmount PromoRejectionReason = "below_minimum_amount"
	PromoUserTypeMismatch   PromoRejectionReason = "user_type_mismatch"
	PromoZeroDiscount       PromoRejectionReason = "zero_discount"
)

// PromoRejection explains why a code cannot be applied. It matches domain.ErrValidation.
type PromoRejection struct {
	Code   string
	Reason PromoRejectionReason
}

func (e *PromoRejection) Error() string {
	return fmt.Sprintf("promo code %q rejected: %s", e.Code, e.Reason)
}

func (e *PromoRejection) Unwrap() error {
	return domain.ErrValidation
}

type promoService struct {
	promos repository.PromoRepository
	now    func() time.Time
}

func NewPromoService(promos repository.PromoRepository) PromoService {
	return &promoService{promos: promos, now: time.Now}
}

func (s *promoService) Validate(ctx context.Context, code string, snap PromoSnapshot, completedBookings int) (*AppliedPromo, error) {
	code = domain.NormalizeCode(code)
	reject := func(reason PromoRejectionReason) (*AppliedPromo, error) {
		logger.Debug("Promo code rejected", "code", code, "reason", reason)
		return nil, &PromoRejection{Code: code, Reason: reason}
	}
	if code == "" {
		return reject(PromoNotFound)
	}

	p, err := s.promos.GetByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return reject(PromoNotFound)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch {
	case !p.IsActive:
		return reject(PromoInactive)
	case now.Before(p.ValidFrom):
		return reject(PromoNotYetValid)
	case p.Expired(now):
		return reject(PromoExpired)
	case p.UsageExhausted():
		return reject(PromoUsageLimitReached)
	case !p.AppliesTo(snap.ItemType, snap.ItemID):
		return reject(PromoNotApplicable)
	case snap.Amount.LessThan(p.MinBookingAmount):
		return reject(PromoBelowMinimumAmount)
	case !p.AcceptsUser(completedBookings):
		return reject(PromoUserTypeMismatch)
	}

	discount := p.CalculateDiscount(snap.Amount)
	if !discount.IsPositive() {
		return reject(PromoZeroDiscount)
	}
	return &AppliedPromo{Promo: p, Discount: discount}, nil
}

// redeemError maps a promo that ran out between validation and the booking
// write to the same rejection Validate would have produced.
func redeemError(applied *AppliedPromo, err error) error {
	if applied != nil && errors.Is(err, repository.ErrPromoExhausted) {
		return &PromoRejection{Code: applied.Promo.Code, Reason: PromoUsageLimitReached}
	}
	return err
}

// promoID is the id redeemed alongside a booking write, empty without a promo
func (a *AppliedPromo) promoID() string {
	if a == nil {
		return ""
	}
	return a.Promo.ID
}
