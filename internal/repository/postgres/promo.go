package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/repository"
)

type promoRepository struct {
	db *sql.DB
}

func NewPromoRepository(db *sql.DB) repository.PromoRepository {
	return &promoRepository{db: db}
}

func (r *promoRepository) GetByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	query := `
		SELECT id, code, description, discount_type, discount_value, min_booking_amount, max_discount,
		       valid_from, valid_until, usage_limit, usage_count, applicable_to, applicable_ids, user_type, is_active
		FROM promo_codes WHERE code = $1
	`
	var (
		p     domain.PromoCode
		limit sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, domain.NormalizeCode(code)).Scan(
		&p.ID, &p.Code, &p.Description, &p.DiscountType, &p.DiscountValue, &p.MinBookingAmount, &p.MaxDiscount,
		&p.ValidFrom, &p.ValidUntil, &limit, &p.UsageCount, &p.ApplicableTo, pq.Array(&p.ApplicableIDs), &p.UserType, &p.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("promo code %s", code)
	}
	if err != nil {
		return nil, err
	}
	if limit.Valid {
		n := int(limit.Int64)
		p.UsageLimit = &n
	}
	return &p, nil
}

// redeemPromo counts one use of a promo code inside the caller's transaction.
// The count is never given back once committed.
func redeemPromo(ctx context.Context, tx execer, id string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE promo_codes SET usage_count = usage_count + 1
		WHERE id = $1 AND is_active AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		id,
	)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("promo %s: %w", id, repository.ErrPromoExhausted)
	}
	logger.DatabaseResult("redeemPromo", 1, nil, "promoID", id)
	return nil
}

func (r *promoRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE promo_codes SET is_active = FALSE WHERE is_active AND valid_until < $1`, now)
	if err != nil {
		logger.DatabaseResult("promoRepository.DeactivateExpired", 0, err)
		return 0, err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("promoRepository.DeactivateExpired", n, err)
	return n, err
}
