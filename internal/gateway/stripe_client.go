package gateway

import (
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// stripeClient adapts the official per-resource clients to stripeAPI
type stripeClient struct {
	sc *client.API
}

func newStripeClient(secretKey string) *stripeClient {
	return &stripeClient{sc: client.New(secretKey, nil)}
}

func (c *stripeClient) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return c.sc.PaymentIntents.New(params)
}

func (c *stripeClient) GetPaymentIntent(id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("latest_charge")
	return c.sc.PaymentIntents.Get(id, params)
}

func (c *stripeClient) CapturePaymentIntent(id string) (*stripe.PaymentIntent, error) {
	return c.sc.PaymentIntents.Capture(id, &stripe.PaymentIntentCaptureParams{})
}

func (c *stripeClient) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	return c.sc.Refunds.New(params)
}
