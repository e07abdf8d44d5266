package service

import (
	"context"
	"fmt"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
)

type googleCalendar struct {
	events     *calendar.EventsService
	calendarID string
}

// NewGoogleCalendar syncs bookings to a Google calendar using a service
// account credentials file. An empty file disables syncing.
func NewGoogleCalendar(ctx context.Context, credentialsFile, calendarID string) (Calendar, error) {
	if credentialsFile == "" {
		return noopCalendar{}, nil
	}
	svc, err := calendar.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(calendar.CalendarEventsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}
	return &googleCalendar{events: svc.Events, calendarID: calendarID}, nil
}

func bookingEvent(b *domain.Booking) *calendar.Event {
	return &calendar.Event{
		Summary:     fmt.Sprintf("%s: %s", b.BookingNumber, b.GuestDetails.Name),
		Description: fmt.Sprintf("Room %s, %d adults, %d children. %s", b.RoomID, b.Guests.Adults, b.Guests.Children, b.GuestDetails.SpecialRequests),
		Start:       &calendar.EventDateTime{Date: b.CheckIn.Format("2006-01-02")},
		End:         &calendar.EventDateTime{Date: b.CheckOut.Format("2006-01-02")},
	}
}

func (c *googleCalendar) CreateEvent(ctx context.Context, b *domain.Booking) (string, error) {
	logger.ExternalServiceCall("google_calendar", "insert", "bookingNumber", b.BookingNumber)
	ev, err := c.events.Insert(c.calendarID, bookingEvent(b)).Context(ctx).Do()
	logger.ExternalServiceResult("google_calendar", "insert", err, "bookingNumber", b.BookingNumber)
	if err != nil {
		return "", err
	}
	return ev.Id, nil
}

func (c *googleCalendar) UpdateEvent(ctx context.Context, b *domain.Booking) error {
	if b.CalendarEventID == "" {
		return nil
	}
	_, err := c.events.Update(c.calendarID, b.CalendarEventID, bookingEvent(b)).Context(ctx).Do()
	logger.ExternalServiceResult("google_calendar", "update", err, "bookingNumber", b.BookingNumber)
	return err
}

func (c *googleCalendar) DeleteEvent(ctx context.Context, b *domain.Booking) error {
	if b.CalendarEventID == "" {
		return nil
	}
	err := c.events.Delete(c.calendarID, b.CalendarEventID).Context(ctx).Do()
	logger.ExternalServiceResult("google_calendar", "delete", err, "bookingNumber", b.BookingNumber)
	return err
}

type noopCalendar struct{}

func (noopCalendar) CreateEvent(context.Context, *domain.Booking) (string, error) { return "", nil }
func (noopCalendar) UpdateEvent(context.Context, *domain.Booking) error           { return nil }
func (noopCalendar) DeleteEvent(context.Context, *domain.Booking) error           { return nil }
