package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/plutov/paypal/v4"

	"staybook-backend/internal/domain"
)

// paypalClient implements paypalAPI with github.com/plutov/paypal
type paypalClient struct {
	c         *paypal.Client
	webhookID string
	returnURL string
	cancelURL string
}

func newPayPalClient(clientID, secret, baseURL, webhookID, returnURL, cancelURL string) (*paypalClient, error) {
	c, err := paypal.NewClient(clientID, secret, baseURL)
	if err != nil {
		return nil, err
	}
	return &paypalClient{c: c, webhookID: webhookID, returnURL: returnURL, cancelURL: cancelURL}, nil
}

func (p *paypalClient) CreateOrder(ctx context.Context, referenceID, description, amount, currency string) (*paypalOrder, error) {
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: referenceID,
		CustomID:    referenceID,
		Description: description,
		Amount:      &paypal.PurchaseUnitAmount{Currency: currency, Value: amount},
	}}
	appCtx := &paypal.ApplicationContext{ReturnURL: p.returnURL, CancelURL: p.cancelURL}

	order, err := p.c.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return nil, classifyPayPalError("create_order", err)
	}

	out := &paypalOrder{ID: order.ID, Status: order.Status, Amount: amount, Currency: currency, CustomID: referenceID}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			out.ApproveURL = link.Href
		}
	}
	out.Raw, _ = json.Marshal(order)
	return out, nil
}

func (p *paypalClient) CaptureOrder(ctx context.Context, orderID string) (*paypalOrder, error) {
	resp, err := p.c.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, classifyPayPalError("capture_order", err)
	}

	out := &paypalOrder{ID: resp.ID, Status: resp.Status}
	if resp.Payer != nil {
		out.PayerEmail = resp.Payer.EmailAddress
		if resp.Payer.Name != nil {
			out.PayerName = strings.TrimSpace(resp.Payer.Name.GivenName + " " + resp.Payer.Name.Surname)
		}
	}
	for _, unit := range resp.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, c := range unit.Payments.Captures {
			out.CaptureID = c.ID
			if c.Amount != nil {
				out.Amount = c.Amount.Value
				out.Currency = c.Amount.Currency
			}
		}
	}
	out.Raw, _ = json.Marshal(resp)
	return out, nil
}

func (p *paypalClient) GetOrder(ctx context.Context, orderID string) (*paypalOrder, error) {
	order, err := p.c.GetOrder(ctx, orderID)
	if err != nil {
		return nil, classifyPayPalError("get_order", err)
	}

	out := &paypalOrder{ID: order.ID, Status: order.Status}
	for _, unit := range order.PurchaseUnits {
		if unit.Amount != nil {
			out.Amount = unit.Amount.Value
			out.Currency = unit.Amount.Currency
		}
		if unit.Payments == nil {
			continue
		}
		for _, c := range unit.Payments.Captures {
			out.CaptureID = c.ID
		}
	}
	out.Raw, _ = json.Marshal(order)
	return out, nil
}

func (p *paypalClient) RefundCapture(ctx context.Context, captureID, amount, currency, note string) (*paypalRefund, error) {
	req := paypal.RefundCaptureRequest{NoteToPayer: note}
	if amount != "" {
		req.Amount = &paypal.Money{Currency: currency, Value: amount}
	}

	resp, err := p.c.RefundCapture(ctx, captureID, req)
	if err != nil {
		return nil, classifyPayPalError("refund_capture", err)
	}

	out := &paypalRefund{ID: resp.ID, Status: resp.Status, Amount: amount}
	out.Raw, _ = json.Marshal(resp)
	return out, nil
}

// VerifyWebhook asks PayPal to validate the transmission headers against the
// configured webhook id.
func (p *paypalClient) VerifyWebhook(ctx context.Context, req WebhookRequest) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhooks/paypal", bytes.NewReader(req.Payload))
	if err != nil {
		return false, err
	}
	httpReq.Header = req.Headers.Clone()

	resp, err := p.c.VerifyWebhookSignature(ctx, httpReq, p.webhookID)
	if err != nil {
		return false, classifyPayPalError("verify_webhook", err)
	}
	return resp.VerificationStatus == "SUCCESS", nil
}

func classifyPayPalError(op string, err error) error {
	var pe *paypal.ErrorResponse
	if errors.As(err, &pe) && pe.Response != nil {
		code := pe.Response.StatusCode
		if code != http.StatusTooManyRequests && code < 500 {
			return err
		}
	}
	return &RetryableError{Gateway: domain.PaymentMethodPayPal, Operation: op, Err: err}
}
