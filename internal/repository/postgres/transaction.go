package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/repository"
)

type transactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `
	id, booking_id, gateway, external_id, amount, currency, payment_type, status, escrow_status,
	escrow_held_at, escrow_release_date, refund_amount, refund_reason, refunded_at,
	payer_email, payer_name, raw_payload, created_at, updated_at`

func scanTransaction(row scanner) (*domain.PaymentTransaction, error) {
	var (
		t   domain.PaymentTransaction
		raw []byte
	)
	err := row.Scan(
		&t.ID, &t.BookingID, &t.Gateway, &t.ExternalID, &t.Amount, &t.Currency, &t.PaymentType, &t.Status, &t.EscrowStatus,
		&t.EscrowHeldAt, &t.EscrowReleaseDate, &t.RefundAmount, &t.RefundReason, &t.RefundedAt,
		&t.PayerEmail, &t.PayerName, &raw, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.RawPayload = raw
	return &t, nil
}

// nullJSON keeps an empty payload out of the JSONB column
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func (r *transactionRepository) Create(ctx context.Context, t *domain.PaymentTransaction) error {
	logger.EnterMethod("transactionRepository.Create", "bookingID", t.BookingID, "gateway", t.Gateway, "externalID", t.ExternalID, "status", t.Status)

	query := `
		INSERT INTO payment_transactions (
			id, booking_id, gateway, external_id, amount, currency, payment_type, status, escrow_status,
			escrow_held_at, escrow_release_date, refund_amount, refund_reason, refunded_at,
			payer_email, payer_name, raw_payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.BookingID, t.Gateway, t.ExternalID, t.Amount, t.Currency, t.PaymentType, t.Status, t.EscrowStatus,
		t.EscrowHeldAt, t.EscrowReleaseDate, t.RefundAmount, t.RefundReason, t.RefundedAt,
		t.PayerEmail, t.PayerName, nullJSON(t.RawPayload), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%s transaction %s: %w", t.Gateway, t.ExternalID, repository.ErrDuplicate)
		}
		logger.ExitMethodWithError("transactionRepository.Create", err, "externalID", t.ExternalID)
		return err
	}

	logger.ExitMethod("transactionRepository.Create", "transactionID", t.ID)
	return nil
}

func (r *transactionRepository) GetByExternalID(ctx context.Context, gateway domain.PaymentMethod, externalID string) (*domain.PaymentTransaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE gateway = $1 AND external_id = $2`,
		gateway, externalID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("%s transaction %s", gateway, externalID)
	}
	return t, err
}

func (r *transactionRepository) ListByBooking(ctx context.Context, bookingID string) ([]*domain.PaymentTransaction, error) {
	logger.DatabaseCall("transactionRepository.ListByBooking", "payment_transactions by booking_id", "bookingID", bookingID)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE booking_id = $1 ORDER BY created_at`,
		bookingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PaymentTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.DatabaseResult("transactionRepository.ListByBooking", int64(len(out)), nil, "bookingID", bookingID)
	return out, nil
}

func (r *transactionRepository) MarkCompleted(ctx context.Context, t *domain.PaymentTransaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = 'completed', escrow_status = 'held', escrow_held_at = $1, amount = $2,
		    payer_email = $3, payer_name = $4, raw_payload = $5, updated_at = $6
		WHERE id = $7 AND status IN ('pending', 'failed')`,
		t.EscrowHeldAt, t.Amount, t.PayerEmail, t.PayerName, nullJSON(t.RawPayload), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("transaction %s already settled: %w", t.ExternalID, repository.ErrDuplicate)
	}
	return nil
}

func (r *transactionRepository) MarkFailed(ctx context.Context, t *domain.PaymentTransaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET status = 'failed', raw_payload = $1, updated_at = $2
		WHERE id = $3 AND status = 'pending'`,
		nullJSON(t.RawPayload), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("transaction %s already settled: %w", t.ExternalID, repository.ErrDuplicate)
	}
	return nil
}

func (r *transactionRepository) ReleaseEscrow(ctx context.Context, id string, releasedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET escrow_status = 'released', escrow_release_date = $1, updated_at = $1
		WHERE id = $2 AND status = 'completed' AND escrow_status = 'held'`,
		releasedAt, id,
	)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return domain.Invariantf("transaction %s is not held in escrow", id)
	}
	return nil
}

func (r *transactionRepository) RecordRefund(ctx context.Context, t *domain.PaymentTransaction) error {
	logger.EnterMethod("transactionRepository.RecordRefund", "transactionID", t.ID, "amount", t.RefundAmount.String())

	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $1, escrow_status = $2, refund_amount = $3, refund_reason = $4, refunded_at = $5, updated_at = $5
		WHERE id = $6 AND status = 'completed' AND escrow_status = 'held'`,
		t.Status, t.EscrowStatus, t.RefundAmount, t.RefundReason, t.RefundedAt, t.ID,
	)
	if err != nil {
		logger.ExitMethodWithError("transactionRepository.RecordRefund", err, "transactionID", t.ID)
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return domain.Invariantf("transaction %s is not held in escrow", t.ID)
	}

	logger.ExitMethod("transactionRepository.RecordRefund", "transactionID", t.ID)
	return nil
}
