package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/repository"
)

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) repository.BookingRepository {
	return &bookingRepository{db: db}
}

const bookingColumns = `
	id, booking_number, user_id, hotel_id, room_id, check_in, check_out, adults, children,
	guest_details, student_discount, pricing, payment_method, payment_plan, payment_status,
	escrow_status, status, cancellation, COALESCE(refund_status, ''), calendar_event_id,
	created_at, updated_at`

func scanBooking(row scanner) (*domain.Booking, error) {
	var (
		b                      domain.Booking
		guestJSON, pricingJSON []byte
		cancellationJSON       []byte
		refundStatus           string
	)
	err := row.Scan(
		&b.ID, &b.BookingNumber, &b.UserID, &b.HotelID, &b.RoomID, &b.CheckIn, &b.CheckOut,
		&b.Guests.Adults, &b.Guests.Children, &guestJSON, &b.StudentDiscount, &pricingJSON,
		&b.Payment.Method, &b.Payment.Plan, &b.Payment.Status, &b.Payment.EscrowStatus, &b.Status,
		&cancellationJSON, &refundStatus, &b.CalendarEventID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(guestJSON, &b.GuestDetails); err != nil {
		return nil, fmt.Errorf("decode guest details of %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(pricingJSON, &b.Pricing); err != nil {
		return nil, fmt.Errorf("decode pricing of %s: %w", b.ID, err)
	}
	if len(cancellationJSON) > 0 {
		var c domain.Cancellation
		if err := json.Unmarshal(cancellationJSON, &c); err != nil {
			return nil, fmt.Errorf("decode cancellation of %s: %w", b.ID, err)
		}
		if refundStatus != "" {
			c.RefundStatus = domain.RefundStatus(refundStatus)
		}
		b.Cancellation = &c
	}
	b.CheckIn = b.CheckIn.UTC()
	b.CheckOut = b.CheckOut.UTC()
	return &b, nil
}

func (r *bookingRepository) CreateIfAvailable(ctx context.Context, b *domain.Booking, promoID string) error {
	logger.EnterMethod("bookingRepository.CreateIfAvailable", "roomID", b.RoomID, "checkIn", b.CheckIn, "checkOut", b.CheckOut)

	guestJSON, err := json.Marshal(b.GuestDetails)
	if err != nil {
		return err
	}
	pricingJSON, err := json.Marshal(b.Pricing)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkAvailability(ctx, tx, b.RoomID, b.CheckIn, b.CheckOut, ""); err != nil {
		logger.ExitMethodWithError("bookingRepository.CreateIfAvailable", err, "roomID", b.RoomID)
		return err
	}

	query := `
		INSERT INTO bookings (
			id, booking_number, user_id, hotel_id, room_id, check_in, check_out, adults, children,
			guest_details, student_discount, pricing, payment_method, payment_plan, payment_status,
			escrow_status, status, calendar_event_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = tx.ExecContext(ctx, query,
		b.ID, b.BookingNumber, b.UserID, b.HotelID, b.RoomID, b.CheckIn, b.CheckOut, b.Guests.Adults, b.Guests.Children,
		guestJSON, b.StudentDiscount, pricingJSON, b.Payment.Method, b.Payment.Plan, b.Payment.Status,
		b.Payment.EscrowStatus, b.Status, b.CalendarEventID, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("booking %s: %w", b.BookingNumber, repository.ErrDuplicate)
		}
		logger.ExitMethodWithError("bookingRepository.CreateIfAvailable", err, "roomID", b.RoomID)
		return err
	}

	if promoID != "" {
		if err := redeemPromo(ctx, tx, promoID); err != nil {
			logger.ExitMethodWithError("bookingRepository.CreateIfAvailable", err, "promoID", promoID)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.ExitMethod("bookingRepository.CreateIfAvailable", "bookingID", b.ID)
	return nil
}

func (r *bookingRepository) RescheduleIfAvailable(ctx context.Context, b *domain.Booking) error {
	logger.EnterMethod("bookingRepository.RescheduleIfAvailable", "bookingID", b.ID, "checkIn", b.CheckIn, "checkOut", b.CheckOut)

	pricingJSON, err := json.Marshal(b.Pricing)
	if err != nil {
		return err
	}
	guestJSON, err := json.Marshal(b.GuestDetails)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkAvailability(ctx, tx, b.RoomID, b.CheckIn, b.CheckOut, b.ID); err != nil {
		logger.ExitMethodWithError("bookingRepository.RescheduleIfAvailable", err, "bookingID", b.ID)
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE bookings SET check_in = $1, check_out = $2, adults = $3, children = $4, guest_details = $5, pricing = $6, updated_at = $7
		WHERE id = $8 AND status = $9`,
		b.CheckIn, b.CheckOut, b.Guests.Adults, b.Guests.Children, guestJSON, pricingJSON, b.UpdatedAt, b.ID, b.Status,
	)
	if err != nil {
		logger.ExitMethodWithError("bookingRepository.RescheduleIfAvailable", err, "bookingID", b.ID)
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return domain.Conflictf("booking %s changed status during modification", b.BookingNumber)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.ExitMethod("bookingRepository.RescheduleIfAvailable", "bookingID", b.ID)
	return nil
}

// checkAvailability holds the room row lock for the rest of tx so that a
// concurrent create or reschedule on the same room waits for our insert.
func checkAvailability(ctx context.Context, tx execer, roomID string, checkIn, checkOut time.Time, excludeID string) error {
	var totalRooms int
	err := tx.QueryRowContext(ctx, `SELECT total_rooms FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&totalRooms)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("room %s", roomID)
	}
	if err != nil {
		return err
	}

	query := `
		SELECT count(*) FROM bookings
		WHERE room_id = $1 AND status IN ('pending', 'confirmed')
		  AND check_in < $3 AND check_out > $2`
	args := []any{roomID, checkIn, checkOut}
	if excludeID != "" {
		query += ` AND id <> $4`
		args = append(args, excludeID)
	}

	var taken int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&taken); err != nil {
		return err
	}
	logger.DatabaseResult("countOverlapping", int64(taken), nil, "roomID", roomID, "totalRooms", totalRooms)
	if taken >= totalRooms {
		return domain.Conflictf("room is not available for the selected dates")
	}
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("booking %s", id)
	}
	return b, err
}

func (r *bookingRepository) GetByNumber(ctx context.Context, bookingNumber string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_number = $1`, bookingNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("booking %s", bookingNumber)
	}
	return b, err
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus) error {
	logger.EnterMethod("bookingRepository.UpdateStatus", "bookingID", id, "from", from, "to", to)

	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		logger.ExitMethodWithError("bookingRepository.UpdateStatus", err, "bookingID", id)
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return domain.Conflictf("booking %s is no longer %s", id, from)
	}

	logger.ExitMethod("bookingRepository.UpdateStatus", "bookingID", id, "status", to)
	return nil
}

func (r *bookingRepository) UpdatePayment(ctx context.Context, id string, status domain.PaymentStatus, escrow domain.EscrowStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET payment_status = $1, escrow_status = $2, updated_at = $3 WHERE id = $4`,
		status, escrow, time.Now().UTC(), id,
	)
	return err
}

func (r *bookingRepository) UpdatePricing(ctx context.Context, id string, pricing domain.Pricing, promoID string) error {
	pricingJSON, err := json.Marshal(pricing)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE bookings SET pricing = $1, updated_at = $2
		WHERE id = $3 AND status = 'pending' AND COALESCE(pricing->>'promo_code', '') = ''`,
		pricingJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return domain.Conflictf("booking %s no longer accepts a promo code", id)
	}

	if promoID != "" {
		if err := redeemPromo(ctx, tx, promoID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *bookingRepository) Close(ctx context.Context, id string, from, to domain.BookingStatus, c *domain.Cancellation) error {
	logger.EnterMethod("bookingRepository.Close", "bookingID", id, "from", from, "to", to, "refundStatus", c.RefundStatus)

	cancellationJSON, err := json.Marshal(c)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET status = $1, cancellation = $2, refund_status = $3, updated_at = $4
		WHERE id = $5 AND status = $6`,
		to, cancellationJSON, c.RefundStatus, c.CancelledAt, id, from,
	)
	if err != nil {
		logger.ExitMethodWithError("bookingRepository.Close", err, "bookingID", id)
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return domain.Conflictf("booking %s is no longer %s", id, from)
	}

	logger.ExitMethod("bookingRepository.Close", "bookingID", id, "status", to)
	return nil
}

func (r *bookingRepository) UpdateRefundStatus(ctx context.Context, id string, status domain.RefundStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET refund_status = $1, updated_at = $2 WHERE id = $3 AND status IN ('cancelled', 'rejected')`,
		status, time.Now().UTC(), id,
	)
	return err
}

func (r *bookingRepository) SetCalendarEventID(ctx context.Context, id, eventID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE bookings SET calendar_event_id = $1 WHERE id = $2`, eventID, id)
	return err
}

func (r *bookingRepository) ListMilestoneDue(ctx context.Context) ([]domain.Booking, error) {
	return r.list(ctx, "ListMilestoneDue", `
		WHERE status = 'confirmed' AND payment_plan = 'milestone' AND payment_status IN ('pending', 'partial')
		ORDER BY check_in`)
}

func (r *bookingRepository) ListCheckingInBetween(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	return r.list(ctx, "ListCheckingInBetween", `
		WHERE status = 'confirmed' AND check_in >= $1 AND check_in < $2
		ORDER BY check_in`, from, to)
}

func (r *bookingRepository) ListCompletable(ctx context.Context, checkOutBefore time.Time) ([]domain.Booking, error) {
	return r.list(ctx, "ListCompletable", `
		WHERE status IN ('confirmed', 'completed') AND escrow_status = 'held' AND check_out < $1
		ORDER BY check_out`, checkOutBefore)
}

func (r *bookingRepository) ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Booking, error) {
	return r.list(ctx, "ListStalePending", `
		WHERE status = 'pending' AND created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM payment_transactions t
			WHERE t.booking_id = bookings.id AND t.status = 'completed'
		  )
		ORDER BY created_at`, createdBefore)
}

func (r *bookingRepository) ListPendingRefunds(ctx context.Context) ([]domain.Booking, error) {
	return r.list(ctx, "ListPendingRefunds", `
		WHERE status IN ('cancelled', 'rejected') AND refund_status = 'pending'
		ORDER BY updated_at`)
}

func (r *bookingRepository) list(ctx context.Context, name, where string, args ...any) ([]domain.Booking, error) {
	logger.DatabaseCall("bookingRepository."+name, where)

	rows, err := r.db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.DatabaseResult("bookingRepository."+name, int64(len(out)), nil)
	return out, nil
}

func (r *bookingRepository) CountCompletedByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM bookings WHERE user_id = $1 AND status = 'completed'`, userID).Scan(&n)
	return n, err
}
