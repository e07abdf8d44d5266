package service

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
)

// message is one rendered guest email
type message struct {
	Subject string
	HTML    string
}

func money(v decimal.Decimal, currency string) string {
	return v.StringFixed(2) + " " + currency
}

func wrap(b *domain.Booking, body string) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	fmt.Fprintf(&sb, "<p>Hello %s,</p>", html.EscapeString(b.GuestDetails.Name))
	sb.WriteString(body)
	fmt.Fprintf(&sb, "<p>Booking reference: <strong>%s</strong></p>", b.BookingNumber)
	sb.WriteString("<p>Best regards,<br>The Staybook Team</p></body></html>")
	return sb.String()
}

func bookingCreatedEmail(b *domain.Booking, info PaymentInfo) message {
	return message{
		Subject: fmt.Sprintf("Booking %s received", b.BookingNumber),
		HTML: wrap(b, fmt.Sprintf(
			"<p>We are holding your room from %s to %s (%d nights).</p><p>Please pay %s to confirm your booking.</p>",
			b.CheckIn.Format("Jan 2, 2006"), b.CheckOut.Format("Jan 2, 2006"), b.Pricing.Nights, money(info.AmountDue, info.Currency),
		)),
	}
}

func bookingConfirmedEmail(b *domain.Booking, currency string) message {
	body := fmt.Sprintf("<p>Your booking is confirmed. Total: %s.</p>", money(b.Pricing.Total, currency))
	if len(b.Pricing.BonusPerks) > 0 {
		body += "<p>Included with your full payment:</p><ul>"
		for _, perk := range b.Pricing.BonusPerks {
			body += "<li>" + html.EscapeString(perk) + "</li>"
		}
		body += "</ul>"
	}
	return message{
		Subject: fmt.Sprintf("Booking %s confirmed", b.BookingNumber),
		HTML:    wrap(b, body),
	}
}

func bookingModifiedEmail(b *domain.Booking, change PriceChange, currency string) message {
	body := fmt.Sprintf("<p>Your stay now runs from %s to %s.</p>", b.CheckIn.Format("Jan 2, 2006"), b.CheckOut.Format("Jan 2, 2006"))
	switch change.Direction {
	case PriceIncrease:
		body += fmt.Sprintf("<p>The new total is %s, %s more than before.</p>", money(change.NewTotal, currency), money(change.Amount, currency))
	case PriceDecrease:
		body += fmt.Sprintf("<p>The new total is %s, %s less than before.</p>", money(change.NewTotal, currency), money(change.Amount, currency))
	}
	return message{
		Subject: fmt.Sprintf("Booking %s updated", b.BookingNumber),
		HTML:    wrap(b, body),
	}
}

func bookingCancelledEmail(b *domain.Booking, d CancellationDetails, currency string) message {
	body := "<p>Your booking has been cancelled.</p>"
	switch d.RefundStatus {
	case domain.RefundStatusPending:
		body += fmt.Sprintf("<p>A refund of %s is on its way.</p>", money(d.RefundAmount, currency))
	case domain.RefundStatusNoRefund:
		body += "<p>No refund applies to this cancellation.</p>"
	}
	body += "<p>" + html.EscapeString(d.PolicyApplied) + "</p>"
	subject := fmt.Sprintf("Booking %s cancelled", b.BookingNumber)
	if b.Status == domain.BookingStatusRejected {
		subject = fmt.Sprintf("Booking %s could not be accepted", b.BookingNumber)
	}
	return message{Subject: subject, HTML: wrap(b, body)}
}

func refundProcessedEmail(b *domain.Booking, refunded decimal.Decimal, currency string) message {
	return message{
		Subject: fmt.Sprintf("Refund for booking %s processed", b.BookingNumber),
		HTML:    wrap(b, fmt.Sprintf("<p>We have refunded %s to your original payment method.</p>", money(refunded, currency))),
	}
}

func milestoneReminderEmail(b *domain.Booking, pt domain.PaymentType, amount decimal.Decimal, currency string) message {
	return message{
		Subject: fmt.Sprintf("Payment reminder for booking %s", b.BookingNumber),
		HTML: wrap(b, fmt.Sprintf(
			"<p>Your %s payment of %s is due before your check-in on %s.</p>",
			strings.ReplaceAll(string(pt), "_", " "), money(amount, currency), b.CheckIn.Format("Jan 2, 2006"),
		)),
	}
}

func checkInReminderEmail(b *domain.Booking) message {
	return message{
		Subject: fmt.Sprintf("See you tomorrow: booking %s", b.BookingNumber),
		HTML:    wrap(b, fmt.Sprintf("<p>Your check-in is tomorrow, %s.</p>", b.CheckIn.Format("Monday, Jan 2"))),
	}
}

func stayCompletedEmail(b *domain.Booking) message {
	return message{
		Subject: fmt.Sprintf("Thanks for staying with us (%s)", b.BookingNumber),
		HTML:    wrap(b, "<p>We hope you enjoyed your stay. We would love to hear your feedback.</p>"),
	}
}
