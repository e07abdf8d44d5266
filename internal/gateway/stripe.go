package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
)

// stripeAPI is the slice of the Stripe client this adapter uses
type stripeAPI interface {
	NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(id string) (*stripe.PaymentIntent, error)
	CapturePaymentIntent(id string) (*stripe.PaymentIntent, error)
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeAdapter struct {
	api           stripeAPI
	webhookSecret string
}

// NewStripeAdapter builds the Stripe adapter on top of the official client
func NewStripeAdapter(secretKey, webhookSecret string) Adapter {
	return newStripeAdapter(newStripeClient(secretKey), webhookSecret)
}

func newStripeAdapter(api stripeAPI, webhookSecret string) *stripeAdapter {
	return &stripeAdapter{api: api, webhookSecret: webhookSecret}
}

func (a *stripeAdapter) Name() domain.PaymentMethod {
	return domain.PaymentMethodStripe
}

func (a *stripeAdapter) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	started := time.Now()
	logger.GatewayCall("stripe", "create_intent", "reference_id", req.ReferenceID, "amount", req.Amount.String())

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(ToMinorUnits(req.Amount, req.Currency)),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("booking_id", req.ReferenceID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := a.api.NewPaymentIntent(params)
	logger.GatewayResult("stripe", "create_intent", started, err, "reference_id", req.ReferenceID)
	if err != nil {
		return nil, classifyStripeError("create_intent", err)
	}

	return &Intent{
		ExternalID: pi.ID,
		ClientPayload: map[string]string{
			"client_secret": pi.ClientSecret,
		},
	}, nil
}

// Capture confirms a PaymentIntent the client has completed. Intents created
// with manual capture are captured here; automatic ones are only read back.
func (a *stripeAdapter) Capture(ctx context.Context, externalID string) (*TransactionResult, error) {
	started := time.Now()
	logger.GatewayCall("stripe", "capture", "external_id", externalID)

	pi, err := a.api.GetPaymentIntent(externalID)
	if err == nil && pi.Status == stripe.PaymentIntentStatusRequiresCapture {
		pi, err = a.api.CapturePaymentIntent(externalID)
	}
	logger.GatewayResult("stripe", "capture", started, err, "external_id", externalID)
	if err != nil {
		return nil, classifyStripeError("capture", err)
	}

	return stripeResult(pi), nil
}

func (a *stripeAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	started := time.Now()
	logger.GatewayCall("stripe", "refund", "external_id", req.ExternalID)

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ExternalID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if req.Amount.Valid {
		params.Amount = stripe.Int64(ToMinorUnits(req.Amount.Decimal, req.Currency))
	}
	params.AddMetadata("reason", req.Reason)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	refund, err := a.api.NewRefund(params)
	logger.GatewayResult("stripe", "refund", started, err, "external_id", req.ExternalID)
	if err != nil {
		return nil, classifyStripeError("refund", err)
	}

	raw, _ := json.Marshal(refund)
	return &RefundResult{
		RefundID: refund.ID,
		Status:   string(refund.Status),
		Amount:   FromMinorUnits(refund.Amount, string(refund.Currency)),
		Raw:      raw,
	}, nil
}

func (a *stripeAdapter) VerifyWebhook(ctx context.Context, req WebhookRequest) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(req.Payload, req.Headers.Get("Stripe-Signature"), a.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &WebhookEvent{EventID: event.ID, Type: string(event.Type), Kind: EventIgnored}
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			// the signature held, so a retry would carry the same body
			logger.Warn("Undecodable Stripe payment intent ignored", "event_id", event.ID, "type", event.Type, "error", err)
			return out, nil
		}
		out.Result = *stripeResult(&pi)
		out.Kind = EventCaptureCompleted
		if event.Type == "payment_intent.payment_failed" {
			out.Kind = EventCaptureFailed
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			logger.Warn("Undecodable Stripe charge ignored", "event_id", event.ID, "type", event.Type, "error", err)
			return out, nil
		}
		out.Kind = EventRefunded
		out.Result = TransactionResult{
			Status:   StatusCompleted,
			Amount:   FromMinorUnits(ch.AmountRefunded, string(ch.Currency)),
			Currency: strings.ToUpper(string(ch.Currency)),
			Raw:      event.Data.Raw,
		}
		if ch.PaymentIntent != nil {
			out.Result.ExternalID = ch.PaymentIntent.ID
		}
	}
	return out, nil
}

func stripeResult(pi *stripe.PaymentIntent) *TransactionResult {
	res := &TransactionResult{
		ExternalID:  pi.ID,
		ReferenceID: pi.Metadata["booking_id"],
		Currency:    strings.ToUpper(string(pi.Currency)),
		PayerEmail:  pi.ReceiptEmail,
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Status = StatusCompleted
		res.Amount = FromMinorUnits(pi.AmountReceived, string(pi.Currency))
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		res.Status = StatusFailed
		res.Amount = FromMinorUnits(pi.Amount, string(pi.Currency))
	default:
		res.Status = StatusPending
		res.Amount = FromMinorUnits(pi.Amount, string(pi.Currency))
	}
	if pi.LatestCharge != nil && pi.LatestCharge.BillingDetails != nil {
		res.PayerName = pi.LatestCharge.BillingDetails.Name
		if res.PayerEmail == "" {
			res.PayerEmail = pi.LatestCharge.BillingDetails.Email
		}
	}
	res.Raw, _ = json.Marshal(pi)
	return res
}

// classifyStripeError marks network, rate limit and server-side failures as retryable
func classifyStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == 429 || se.HTTPStatusCode >= 500 || se.Type == stripe.ErrorTypeAPI {
			return &RetryableError{Gateway: domain.PaymentMethodStripe, Operation: op, Err: err}
		}
		return fmt.Errorf("stripe %s: %w", op, err)
	}
	return &RetryableError{Gateway: domain.PaymentMethodStripe, Operation: op, Err: err}
}
