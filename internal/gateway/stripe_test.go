package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

type mockStripeAPI struct {
	mock.Mock
}

func (m *mockStripeAPI) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.PaymentIntent), args.Error(1)
}

func (m *mockStripeAPI) GetPaymentIntent(id string) (*stripe.PaymentIntent, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.PaymentIntent), args.Error(1)
}

func (m *mockStripeAPI) CapturePaymentIntent(id string) (*stripe.PaymentIntent, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.PaymentIntent), args.Error(1)
}

func (m *mockStripeAPI) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Refund), args.Error(1)
}

func TestStripe_CreateIntentConvertsToCents(t *testing.T) {
	api := new(mockStripeAPI)
	a := newStripeAdapter(api, "whsec")

	api.On("NewPaymentIntent", mock.MatchedBy(func(p *stripe.PaymentIntentParams) bool {
		return *p.Amount == 28215 && *p.Currency == "usd" && p.Metadata["booking_id"] == "b-1" && *p.IdempotencyKey == "intent-b-1-full"
	})).Return(&stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil)

	intent, err := a.CreateIntent(context.Background(), IntentRequest{
		Amount:         decimal.RequireFromString("282.15"),
		Currency:       "USD",
		ReferenceID:    "b-1",
		IdempotencyKey: "intent-b-1-full",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ExternalID)
	assert.Equal(t, "pi_1_secret", intent.ClientPayload["client_secret"])
	api.AssertExpectations(t)
}

func TestStripe_Capture(t *testing.T) {
	t.Run("succeeded intent is read back", func(t *testing.T) {
		api := new(mockStripeAPI)
		api.On("GetPaymentIntent", "pi_1").Return(&stripe.PaymentIntent{
			ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, Amount: 28215, AmountReceived: 28215,
			Currency: "usd", ReceiptEmail: "guest@example.com",
		}, nil)

		res, err := newStripeAdapter(api, "").Capture(context.Background(), "pi_1")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.True(t, decimal.RequireFromString("282.15").Equal(res.Amount))
		assert.Equal(t, "USD", res.Currency)
		assert.Equal(t, "guest@example.com", res.PayerEmail)
		api.AssertNotCalled(t, "CapturePaymentIntent", mock.Anything)
	})

	t.Run("manual capture", func(t *testing.T) {
		api := new(mockStripeAPI)
		api.On("GetPaymentIntent", "pi_2").Return(&stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusRequiresCapture, Amount: 1000, Currency: "usd"}, nil)
		api.On("CapturePaymentIntent", "pi_2").Return(&stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusSucceeded, Amount: 1000, AmountReceived: 1000, Currency: "usd"}, nil)

		res, err := newStripeAdapter(api, "").Capture(context.Background(), "pi_2")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.True(t, decimal.NewFromInt(10).Equal(res.Amount))
	})

	t.Run("server error is retryable", func(t *testing.T) {
		api := new(mockStripeAPI)
		api.On("GetPaymentIntent", "pi_3").Return(nil, &stripe.Error{HTTPStatusCode: 503, Type: stripe.ErrorTypeAPI})

		_, err := newStripeAdapter(api, "").Capture(context.Background(), "pi_3")
		assert.True(t, IsRetryable(err))
	})

	t.Run("card error is not retryable", func(t *testing.T) {
		api := new(mockStripeAPI)
		api.On("GetPaymentIntent", "pi_4").Return(nil, &stripe.Error{HTTPStatusCode: 402, Type: stripe.ErrorTypeCard})

		_, err := newStripeAdapter(api, "").Capture(context.Background(), "pi_4")
		require.Error(t, err)
		assert.False(t, IsRetryable(err))
	})
}

func TestStripe_PartialRefund(t *testing.T) {
	api := new(mockStripeAPI)
	api.On("NewRefund", mock.MatchedBy(func(p *stripe.RefundParams) bool {
		return *p.PaymentIntent == "pi_1" && *p.Amount == 15000
	})).Return(&stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded, Amount: 15000, Currency: "usd"}, nil)

	res, err := newStripeAdapter(api, "").Refund(context.Background(), RefundRequest{
		ExternalID: "pi_1",
		Amount:     decimal.NewNullDecimal(decimal.NewFromInt(150)),
		Currency:   "USD",
		Reason:     "guest cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", res.RefundID)
	assert.True(t, decimal.NewFromInt(150).Equal(res.Amount))
}

func stripeSignature(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripe_VerifyWebhook(t *testing.T) {
	a := newStripeAdapter(new(mockStripeAPI), "whsec_test")
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"2023-10-16",` +
		`"data":{"object":{"id":"pi_1","object":"payment_intent","amount":28215,"amount_received":28215,"currency":"usd",` +
		`"status":"succeeded","metadata":{"booking_id":"b-1"}}}}`)

	t.Run("valid signature", func(t *testing.T) {
		h := http.Header{}
		h.Set("Stripe-Signature", stripeSignature("whsec_test", payload, time.Now()))

		ev, err := a.VerifyWebhook(context.Background(), WebhookRequest{Payload: payload, Headers: h})
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.EventID)
		assert.Equal(t, EventCaptureCompleted, ev.Kind)
		assert.Equal(t, "pi_1", ev.Result.ExternalID)
		assert.Equal(t, "b-1", ev.Result.ReferenceID)
		assert.True(t, decimal.RequireFromString("282.15").Equal(ev.Result.Amount))
	})

	t.Run("wrong secret", func(t *testing.T) {
		h := http.Header{}
		h.Set("Stripe-Signature", stripeSignature("whsec_other", payload, time.Now()))

		_, err := a.VerifyWebhook(context.Background(), WebhookRequest{Payload: payload, Headers: h})
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})
	t.Run("signed but undecodable object", func(t *testing.T) {
		bad := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.succeeded","api_version":"2023-10-16",` +
			`"data":{"object":{"id":"pi_2","object":"payment_intent","amount":"lots","currency":"usd"}}}`)
		h := http.Header{}
		h.Set("Stripe-Signature", stripeSignature("whsec_test", bad, time.Now()))

		ev, err := a.VerifyWebhook(context.Background(), WebhookRequest{Payload: bad, Headers: h})
		require.NoError(t, err)
		assert.Equal(t, "evt_2", ev.EventID)
		assert.Equal(t, EventIgnored, ev.Kind)
		assert.Empty(t, ev.Result.ExternalID)
	})
}
