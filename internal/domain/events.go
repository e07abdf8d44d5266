package domain

import "time"

// RefundJob asks the refund worker to settle a closed booking's refund.
// Jobs are keyed by booking; processing the same job twice is a no-op.
type RefundJob struct {
	BookingID   string    `json:"booking_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventModified  BookingEventType = "booking.modified"
	BookingEventCancelled BookingEventType = "booking.cancelled"
	BookingEventRejected  BookingEventType = "booking.rejected"
	BookingEventCompleted BookingEventType = "booking.completed"
	BookingEventRefunded  BookingEventType = "booking.refunded"
)

// BookingEvent is published for downstream consumers such as analytics
type BookingEvent struct {
	Type          BookingEventType `json:"type"`
	BookingID     string           `json:"booking_id"`
	BookingNumber string           `json:"booking_number"`
	UserID        string           `json:"user_id"`
	Status        BookingStatus    `json:"status"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// NewBookingEvent snapshots b for publication
func NewBookingEvent(t BookingEventType, b *Booking, now time.Time) BookingEvent {
	return BookingEvent{
		Type:          t,
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		UserID:        b.UserID,
		Status:        b.Status,
		OccurredAt:    now,
	}
}
