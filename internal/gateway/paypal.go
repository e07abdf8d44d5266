package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
)

// paypalOrder is the subset of a PayPal order this adapter reads
type paypalOrder struct {
	ID         string
	Status     string
	ApproveURL string
	CaptureID  string
	Amount     string
	Currency   string
	CustomID   string
	PayerEmail string
	PayerName  string
	Raw        json.RawMessage
}

type paypalRefund struct {
	ID     string
	Status string
	Amount string
	Raw    json.RawMessage
}

// paypalAPI is the slice of the PayPal Orders and Payments API this adapter uses
type paypalAPI interface {
	CreateOrder(ctx context.Context, referenceID, description, amount, currency string) (*paypalOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypalOrder, error)
	GetOrder(ctx context.Context, orderID string) (*paypalOrder, error)
	RefundCapture(ctx context.Context, captureID, amount, currency, note string) (*paypalRefund, error)
	VerifyWebhook(ctx context.Context, req WebhookRequest) (bool, error)
}

type paypalAdapter struct {
	api paypalAPI
}

// NewPayPalAdapter builds the PayPal adapter on top of the plutov/paypal client
func NewPayPalAdapter(clientID, secret, baseURL, webhookID, returnURL, cancelURL string) (Adapter, error) {
	api, err := newPayPalClient(clientID, secret, baseURL, webhookID, returnURL, cancelURL)
	if err != nil {
		return nil, err
	}
	return &paypalAdapter{api: api}, nil
}

func (a *paypalAdapter) Name() domain.PaymentMethod {
	return domain.PaymentMethodPayPal
}

func (a *paypalAdapter) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	started := time.Now()
	logger.GatewayCall("paypal", "create_order", "reference_id", req.ReferenceID, "amount", req.Amount.String())

	order, err := a.api.CreateOrder(ctx, req.ReferenceID, req.Description, formatMajor(req.Amount, req.Currency), strings.ToUpper(req.Currency))
	logger.GatewayResult("paypal", "create_order", started, err, "reference_id", req.ReferenceID)
	if err != nil {
		return nil, err
	}

	return &Intent{
		ExternalID: order.ID,
		ClientPayload: map[string]string{
			"approval_url": order.ApproveURL,
			"order_id":     order.ID,
		},
	}, nil
}

// Capture captures an order the payer has approved. An order that was already
// captured (for example by a webhook race) is read back instead.
func (a *paypalAdapter) Capture(ctx context.Context, externalID string) (*TransactionResult, error) {
	started := time.Now()
	logger.GatewayCall("paypal", "capture_order", "external_id", externalID)

	order, err := a.api.CaptureOrder(ctx, externalID)
	if err != nil && !IsRetryable(err) {
		if existing, getErr := a.api.GetOrder(ctx, externalID); getErr == nil && existing.Status == "COMPLETED" {
			order, err = existing, nil
		}
	}
	logger.GatewayResult("paypal", "capture_order", started, err, "external_id", externalID)
	if err != nil {
		return nil, err
	}

	return paypalResult(order)
}

// Refund refunds the capture behind an order. The ledger keys PayPal rows by
// order id, so the capture id is looked up first.
func (a *paypalAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	started := time.Now()
	logger.GatewayCall("paypal", "refund", "external_id", req.ExternalID)

	order, err := a.api.GetOrder(ctx, req.ExternalID)
	if err != nil {
		logger.GatewayResult("paypal", "refund", started, err, "external_id", req.ExternalID)
		return nil, err
	}
	if order.CaptureID == "" {
		return nil, fmt.Errorf("paypal order %s has no capture to refund", req.ExternalID)
	}

	amount := ""
	if req.Amount.Valid {
		amount = formatMajor(req.Amount.Decimal, req.Currency)
	}
	refund, err := a.api.RefundCapture(ctx, order.CaptureID, amount, strings.ToUpper(req.Currency), req.Reason)
	logger.GatewayResult("paypal", "refund", started, err, "external_id", req.ExternalID, "capture_id", order.CaptureID)
	if err != nil {
		return nil, err
	}

	res := &RefundResult{RefundID: refund.ID, Status: refund.Status, Raw: refund.Raw}
	if refund.Amount != "" {
		res.Amount, _ = decimal.NewFromString(refund.Amount)
	}
	return res, nil
}

// paypalEvent is the envelope of a PayPal webhook notification
type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		CustomID string `json:"custom_id"`
		Amount   struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (a *paypalAdapter) VerifyWebhook(ctx context.Context, req WebhookRequest) (*WebhookEvent, error) {
	ok, err := a.api.VerifyWebhook(ctx, req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSignatureInvalid
	}

	var ev paypalEvent
	if err := json.Unmarshal(req.Payload, &ev); err != nil {
		return nil, fmt.Errorf("decode paypal event: %w", err)
	}

	out := &WebhookEvent{EventID: ev.ID, Type: ev.EventType, Kind: EventIgnored}
	switch ev.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		out.Kind = EventCaptureCompleted
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		out.Kind = EventCaptureFailed
	case "PAYMENT.CAPTURE.REFUNDED":
		out.Kind = EventRefunded
	default:
		return out, nil
	}

	amount, err := decimal.NewFromString(ev.Resource.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("paypal event %s amount: %w", ev.ID, err)
	}
	status := StatusCompleted
	if out.Kind == EventCaptureFailed {
		status = StatusFailed
	}
	out.Result = TransactionResult{
		ExternalID:  ev.Resource.SupplementaryData.RelatedIDs.OrderID,
		ReferenceID: ev.Resource.CustomID,
		Status:      status,
		Amount:      amount,
		Currency:    ev.Resource.Amount.CurrencyCode,
		Raw:         req.Payload,
	}
	return out, nil
}

func paypalResult(order *paypalOrder) (*TransactionResult, error) {
	res := &TransactionResult{
		ExternalID:  order.ID,
		ReferenceID: order.CustomID,
		Currency:    order.Currency,
		PayerEmail:  order.PayerEmail,
		PayerName:   order.PayerName,
		Raw:         order.Raw,
	}
	switch order.Status {
	case "COMPLETED":
		res.Status = StatusCompleted
	case "VOIDED":
		res.Status = StatusFailed
	default:
		res.Status = StatusPending
	}
	if order.Amount != "" {
		amount, err := decimal.NewFromString(order.Amount)
		if err != nil {
			return nil, fmt.Errorf("paypal order %s amount: %w", order.ID, err)
		}
		res.Amount = amount
	}
	return res, nil
}
