package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
)

type sendGridNotifier struct {
	apiKey    string
	fromEmail string
	fromName  string
}

// NewSendGridNotifier sends email through SendGrid. With an empty API key
// messages are only logged, which is what local runs use.
func NewSendGridNotifier(apiKey, fromEmail, fromName string) Notifier {
	return &sendGridNotifier{apiKey: apiKey, fromEmail: fromEmail, fromName: fromName}
}

func (s *sendGridNotifier) SendEmail(ctx context.Context, to, subject, htmlContent string) error {
	if s.apiKey == "" {
		logger.Info("Email delivery disabled, dropping message", "to", to, "subject", subject)
		return nil
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, recipient, "", htmlContent)

	logger.ExternalServiceCall("sendgrid", "send", "to", to, "subject", subject)
	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		logger.ExternalServiceResult("sendgrid", "send", err, "to", to)
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		logger.ExternalServiceResult("sendgrid", "send", err, "to", to)
		return err
	}

	logger.ExternalServiceResult("sendgrid", "send", nil, "to", to, "status", response.StatusCode)
	return nil
}

// SendSMS has no provider wired yet; messages are logged so operators can follow up
func (s *sendGridNotifier) SendSMS(ctx context.Context, to, body string) error {
	logger.Info("SMS", "to", to, "body", body)
	return nil
}

// guestNotifier fans a message out to the guest's email and phone. Errors are
// logged and never returned.
type guestNotifier struct {
	notifier Notifier
}

func (g guestNotifier) send(ctx context.Context, b *domain.Booking, msg message) {
	if g.notifier == nil {
		return
	}
	if b.GuestDetails.Email != "" {
		if err := g.notifier.SendEmail(ctx, b.GuestDetails.Email, msg.Subject, msg.HTML); err != nil {
			logger.Warn("Failed to send guest email", "bookingNumber", b.BookingNumber, "subject", msg.Subject, "error", err)
		}
	}
	if b.GuestDetails.Phone != "" {
		if err := g.notifier.SendSMS(ctx, b.GuestDetails.Phone, msg.Subject); err != nil {
			logger.Warn("Failed to send guest SMS", "bookingNumber", b.BookingNumber, "error", err)
		}
	}
}
