package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/repository"
	"staybook-backend/internal/repository/postgres"
)

var bookingCols = []string{
	"id", "booking_number", "user_id", "hotel_id", "room_id", "check_in", "check_out", "adults", "children",
	"guest_details", "student_discount", "pricing", "payment_method", "payment_plan", "payment_status",
	"escrow_status", "status", "cancellation", "refund_status", "calendar_event_id", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func sampleBooking() *domain.Booking {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Booking{
		ID:            "b-1",
		BookingNumber: "BK-20260101-AAAA0001",
		UserID:        "user-1",
		HotelID:       "hotel-1",
		RoomID:        "room-1",
		CheckIn:       time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:      time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC),
		Guests:        domain.Guests{Adults: 2},
		GuestDetails:  domain.GuestDetails{Name: "Dara", Email: "dara@example.com", Phone: "+85512345678"},
		Pricing:       domain.Pricing{Subtotal: decimal.NewFromInt(300), Total: decimal.RequireFromString("282.15")},
		Payment:       domain.Payment{Method: domain.PaymentMethodStripe, Plan: domain.PaymentPlanFull, Status: domain.PaymentStatusPending, EscrowStatus: domain.EscrowStatusNone},
		Status:        domain.BookingStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestBookingRepository_CreateIfAvailable(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := postgres.NewBookingRepository(db)
		b := sampleBooking()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT total_rooms FROM rooms WHERE id = \\$1 FOR UPDATE").
			WithArgs("room-1").
			WillReturnRows(sqlmock.NewRows([]string{"total_rooms"}).AddRow(2))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings").
			WithArgs("room-1", b.CheckIn, b.CheckOut).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.CreateIfAvailable(ctx, b, ""))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RedeemsPromoInSameTransaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := postgres.NewBookingRepository(db)
		b := sampleBooking()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT total_rooms FROM rooms").
			WillReturnRows(sqlmock.NewRows([]string{"total_rooms"}).AddRow(2))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE promo_codes SET usage_count = usage_count \\+ 1").
			WithArgs("p-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.CreateIfAvailable(ctx, b, "p-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ExhaustedPromoRollsBackInsert", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := postgres.NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT total_rooms FROM rooms").
			WillReturnRows(sqlmock.NewRows([]string{"total_rooms"}).AddRow(2))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE promo_codes SET usage_count").
			WithArgs("p-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.CreateIfAvailable(ctx, sampleBooking(), "p-1")
		assert.ErrorIs(t, err, repository.ErrPromoExhausted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RoomFull", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := postgres.NewBookingRepository(db)
		b := sampleBooking()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT total_rooms FROM rooms").
			WithArgs("room-1").
			WillReturnRows(sqlmock.NewRows([]string{"total_rooms"}).AddRow(2))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectRollback()

		// the promo update is never issued when the room is full
		err := repo.CreateIfAvailable(ctx, b, "p-1")
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownRoom", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := postgres.NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT total_rooms FROM rooms").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := repo.CreateIfAvailable(ctx, sampleBooking(), "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestBookingRepository_RescheduleIfAvailable(t *testing.T) {
	ctx := context.Background()

	t.Run("ExcludesSelf", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := postgres.NewBookingRepository(db)
		b := sampleBooking()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT total_rooms FROM rooms").
			WillReturnRows(sqlmock.NewRows([]string{"total_rooms"}).AddRow(1))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings .* AND id <> \\$4").
			WithArgs("room-1", b.CheckIn, b.CheckOut, "b-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("UPDATE bookings SET check_in").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.RescheduleIfAvailable(ctx, b))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("StatusChangedConcurrently", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := postgres.NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT total_rooms FROM rooms").
			WillReturnRows(sqlmock.NewRows([]string{"total_rooms"}).AddRow(1))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("UPDATE bookings SET check_in").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.RescheduleIfAvailable(ctx, sampleBooking())
		assert.ErrorIs(t, err, domain.ErrConflict)
	})
}

func TestBookingRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := postgres.NewBookingRepository(db)
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("CancelledWithRefund", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs("b-1").
			WillReturnRows(sqlmock.NewRows(bookingCols).AddRow(
				"b-1", "BK-20260101-AAAA0001", "user-1", "hotel-1", "room-1",
				time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC), 2, 1,
				[]byte(`{"name":"Dara","email":"dara@example.com","phone":"+85512345678"}`), true,
				[]byte(`{"subtotal":"300","total":"282.15","promo_code":"SUMMER10"}`),
				"stripe", "full", "completed", "refunded", "cancelled",
				[]byte(`{"reason":"plans changed","refund_amount":"282.15","refund_percentage":100,"refund_status":"pending","days_until_checkin":40}`),
				"processed", "", created, created,
			))

		b, err := repo.GetByID(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCancelled, b.Status)
		assert.Equal(t, domain.PaymentMethodStripe, b.Payment.Method)
		assert.Equal(t, 1, b.Guests.Children)
		assert.Equal(t, "SUMMER10", b.Pricing.PromoCode)
		assert.True(t, decimal.RequireFromString("282.15").Equal(b.Pricing.Total))
		require.NotNil(t, b.Cancellation)
		assert.Equal(t, 100, b.Cancellation.RefundPercentage)
		assert.Equal(t, domain.RefundStatusProcessed, b.Cancellation.RefundStatus, "column overrides the stored record")
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestBookingRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := postgres.NewBookingRepository(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE bookings SET status = \\$1, updated_at = \\$2 WHERE id = \\$3 AND status = \\$4").
			WithArgs(domain.BookingStatusConfirmed, sqlmock.AnyArg(), "b-1", domain.BookingStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateStatus(ctx, "b-1", domain.BookingStatusPending, domain.BookingStatusConfirmed))
	})

	t.Run("LostRace", func(t *testing.T) {
		mock.ExpectExec("UPDATE bookings SET status").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(ctx, "b-1", domain.BookingStatusPending, domain.BookingStatusConfirmed)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})
}

func TestBookingRepository_UpdatePricingOnlyOnce(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := postgres.NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings SET pricing = \\$1 .* promo_code").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdatePricing(ctx, "b-1", domain.Pricing{PromoCode: "SUMMER10"}, "p-1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_UpdatePricingRedeemsPromo(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := postgres.NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE bookings SET pricing").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE promo_codes SET usage_count").
			WithArgs("p-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.UpdatePricing(ctx, "b-1", domain.Pricing{PromoCode: "SUMMER10"}, "p-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Exhausted", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := postgres.NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE bookings SET pricing").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE promo_codes SET usage_count").
			WithArgs("p-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.UpdatePricing(ctx, "b-1", domain.Pricing{PromoCode: "SUMMER10"}, "p-1")
		assert.ErrorIs(t, err, repository.ErrPromoExhausted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_Close(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := postgres.NewBookingRepository(db)
	c := &domain.Cancellation{
		CancelledAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Reason:       "plans changed",
		RefundStatus: domain.RefundStatusPending,
	}

	mock.ExpectExec("UPDATE bookings SET status = \\$1, cancellation = \\$2").
		WithArgs(domain.BookingStatusCancelled, sqlmock.AnyArg(), domain.RefundStatusPending, c.CancelledAt, "b-1", domain.BookingStatusConfirmed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Close(ctx, "b-1", domain.BookingStatusConfirmed, domain.BookingStatusCancelled, c))

	mock.ExpectExec("UPDATE bookings SET status = \\$1, cancellation = \\$2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Close(ctx, "b-1", domain.BookingStatusConfirmed, domain.BookingStatusCancelled, c)
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ListCompletable(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := postgres.NewBookingRepository(db)
	today := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(bookingCols)
	for _, id := range []string{"b-1", "b-2"} {
		rows.AddRow(id, "BK-"+id, "user-1", "hotel-1", "room-1",
			time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC), 2, 0,
			[]byte(`{}`), false, []byte(`{"total":"100"}`),
			"paypal", "deposit", "completed", "held", "confirmed", nil, "", "", created, created)
	}
	mock.ExpectQuery("SELECT (.+) FROM bookings .*escrow_status = 'held' AND check_out < \\$1").
		WithArgs(today).
		WillReturnRows(rows)

	list, err := repo.ListCompletable(ctx, today)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[0].Cancellation)
	assert.Equal(t, domain.EscrowStatusHeld, list[1].Payment.EscrowStatus)
}

func TestBookingRepository_CountCompletedByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewBookingRepository(db)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM bookings WHERE user_id = \\$1 AND status = 'completed'").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountCompletedByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
