package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/gateway"
)

// MockRoomRepo
type MockRoomRepo struct {
	mock.Mock
}

func (m *MockRoomRepo) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Room), args.Error(1)
}

// MockBookingRepo
type MockBookingRepo struct {
	mock.Mock
}

func (m *MockBookingRepo) CreateIfAvailable(ctx context.Context, b *domain.Booking, promoID string) error {
	args := m.Called(ctx, b, promoID)
	return args.Error(0)
}
func (m *MockBookingRepo) RescheduleIfAvailable(ctx context.Context, b *domain.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}
func (m *MockBookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) GetByNumber(ctx context.Context, bookingNumber string) (*domain.Booking, error) {
	args := m.Called(ctx, bookingNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}
func (m *MockBookingRepo) UpdatePayment(ctx context.Context, id string, status domain.PaymentStatus, escrow domain.EscrowStatus) error {
	args := m.Called(ctx, id, status, escrow)
	return args.Error(0)
}
func (m *MockBookingRepo) UpdatePricing(ctx context.Context, id string, pricing domain.Pricing, promoID string) error {
	args := m.Called(ctx, id, pricing, promoID)
	return args.Error(0)
}
func (m *MockBookingRepo) Close(ctx context.Context, id string, from, to domain.BookingStatus, c *domain.Cancellation) error {
	args := m.Called(ctx, id, from, to, c)
	return args.Error(0)
}
func (m *MockBookingRepo) UpdateRefundStatus(ctx context.Context, id string, status domain.RefundStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}
func (m *MockBookingRepo) SetCalendarEventID(ctx context.Context, id, eventID string) error {
	args := m.Called(ctx, id, eventID)
	return args.Error(0)
}
func (m *MockBookingRepo) ListMilestoneDue(ctx context.Context) ([]domain.Booking, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) ListCheckingInBetween(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) ListCompletable(ctx context.Context, checkOutBefore time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, checkOutBefore)
	return args.Get(0).([]domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, createdBefore)
	return args.Get(0).([]domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) ListPendingRefunds(ctx context.Context) ([]domain.Booking, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) CountCompletedByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// MockTransactionRepo
type MockTransactionRepo struct {
	mock.Mock
}

func (m *MockTransactionRepo) Create(ctx context.Context, t *domain.PaymentTransaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}
func (m *MockTransactionRepo) GetByExternalID(ctx context.Context, gw domain.PaymentMethod, externalID string) (*domain.PaymentTransaction, error) {
	args := m.Called(ctx, gw, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentTransaction), args.Error(1)
}
func (m *MockTransactionRepo) ListByBooking(ctx context.Context, bookingID string) ([]*domain.PaymentTransaction, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).([]*domain.PaymentTransaction), args.Error(1)
}
func (m *MockTransactionRepo) MarkCompleted(ctx context.Context, t *domain.PaymentTransaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}
func (m *MockTransactionRepo) MarkFailed(ctx context.Context, t *domain.PaymentTransaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}
func (m *MockTransactionRepo) ReleaseEscrow(ctx context.Context, id string, releasedAt time.Time) error {
	args := m.Called(ctx, id, releasedAt)
	return args.Error(0)
}
func (m *MockTransactionRepo) RecordRefund(ctx context.Context, t *domain.PaymentTransaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

// MockPromoRepo
type MockPromoRepo struct {
	mock.Mock
}

func (m *MockPromoRepo) GetByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PromoCode), args.Error(1)
}
func (m *MockPromoRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockNotifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendEmail(ctx context.Context, to, subject, html string) error {
	args := m.Called(ctx, to, subject, html)
	return args.Error(0)
}
func (m *MockNotifier) SendSMS(ctx context.Context, to, body string) error {
	args := m.Called(ctx, to, body)
	return args.Error(0)
}

// MockCalendar
type MockCalendar struct {
	mock.Mock
}

func (m *MockCalendar) CreateEvent(ctx context.Context, b *domain.Booking) (string, error) {
	args := m.Called(ctx, b)
	return args.String(0), args.Error(1)
}
func (m *MockCalendar) UpdateEvent(ctx context.Context, b *domain.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}
func (m *MockCalendar) DeleteEvent(ctx context.Context, b *domain.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

// MockPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishRefund(ctx context.Context, job domain.RefundJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}
func (m *MockPublisher) PublishEvent(ctx context.Context, evt domain.BookingEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

// MockClaimer
type MockClaimer struct {
	mock.Mock
}

func (m *MockClaimer) Claim(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// MockAdapter
type MockAdapter struct {
	mock.Mock
	method domain.PaymentMethod
}

func (m *MockAdapter) Name() domain.PaymentMethod {
	return m.method
}
func (m *MockAdapter) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Intent), args.Error(1)
}
func (m *MockAdapter) Capture(ctx context.Context, externalID string) (*gateway.TransactionResult, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.TransactionResult), args.Error(1)
}
func (m *MockAdapter) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.RefundResult), args.Error(1)
}
func (m *MockAdapter) VerifyWebhook(ctx context.Context, req gateway.WebhookRequest) (*gateway.WebhookEvent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.WebhookEvent), args.Error(1)
}

// MockRefundProcessor
type MockRefundProcessor struct {
	mock.Mock
}

func (m *MockRefundProcessor) Process(ctx context.Context, job domain.RefundJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}
