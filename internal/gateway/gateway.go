// Package gateway wraps the PayPal, Stripe and Bakong payment APIs behind one
// Adapter interface. Adapters own all unit conversion: everything crossing
// this package boundary is a major-unit decimal amount.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
)

var (
	// ErrSignatureInvalid rejects a webhook delivery; it is never retried.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	// ErrUnsupported is returned for a payment method with no configured adapter.
	ErrUnsupported = errors.New("payment method not supported")
)

// Status is the normalized outcome of a capture or status check
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
	// StatusTimeout means polling gave up before the gateway reported an outcome.
	StatusTimeout Status = "timeout"
)

// Final reports whether the gateway has settled the payment one way or another
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

type IntentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	ReferenceID    string
	Description    string
	IdempotencyKey string
}

// Intent is what the client needs to complete payment with the gateway.
// ClientPayload holds the approval URL (PayPal), client secret (Stripe) or
// KHQR string and md5 (Bakong).
type Intent struct {
	ExternalID    string            `json:"external_id"`
	ClientPayload map[string]string `json:"client_payload"`
}

// TransactionResult is the common shape every adapter reports captures in
type TransactionResult struct {
	ExternalID  string
	ReferenceID string
	Status      Status
	Amount      decimal.Decimal
	Currency    string
	PayerEmail  string
	PayerName   string
	Raw         json.RawMessage
}

type RefundRequest struct {
	ExternalID string
	// Amount is optional; an invalid NullDecimal refunds the full capture.
	Amount         decimal.NullDecimal
	Currency       string
	Reason         string
	IdempotencyKey string
}

type RefundResult struct {
	RefundID string
	Status   string
	Amount   decimal.Decimal
	Raw      json.RawMessage
}

type WebhookRequest struct {
	Payload []byte
	Headers http.Header
}

type EventKind string

const (
	EventCaptureCompleted EventKind = "capture.completed"
	EventCaptureFailed    EventKind = "capture.failed"
	EventRefunded         EventKind = "refunded"
	// EventIgnored is a verified delivery of a type this system does not act on.
	EventIgnored EventKind = "ignored"
)

// WebhookEvent is a verified, decoded gateway notification
type WebhookEvent struct {
	EventID string
	Type    string
	Kind    EventKind
	Result  TransactionResult
}

// Adapter is implemented once per gateway
type Adapter interface {
	Name() domain.PaymentMethod
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Capture(ctx context.Context, externalID string) (*TransactionResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	VerifyWebhook(ctx context.Context, req WebhookRequest) (*WebhookEvent, error)
}

// RetryableError marks a transient failure (network, 5xx, rate limit) that the
// caller may retry.
type RetryableError struct {
	Gateway   domain.PaymentMethod
	Operation string
	Err       error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s %s: retryable: %v", e.Gateway, e.Operation, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err wraps a RetryableError
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Registry dispatches on the booking's payment method
type Registry struct {
	adapters map[domain.PaymentMethod]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.PaymentMethod]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// For returns the adapter registered for method
func (r *Registry) For(method domain.PaymentMethod) (Adapter, error) {
	a, ok := r.adapters[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, method)
	}
	return a, nil
}
