package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook-backend/internal/domain"
)

func TestCRC16CCITT(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), crc16CCITT([]byte("123456789")))
}

func TestKHQR_Encode(t *testing.T) {
	qr := KHQR{
		AccountID:    "staybook@aclb",
		MerchantName: "StayBook",
		MerchantCity: "Phnom Penh",
		Currency:     "USD",
		Amount:       decimal.RequireFromString("148.5"),
		BillNumber:   "BK-20260115-9F3A21C0",
		CreatedAt:    time.UnixMilli(1768435200000),
	}
	payload, err := qr.Encode()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(payload, "000201010212"))
	assert.Contains(t, payload, "2917"+"0013staybook@aclb")
	assert.Contains(t, payload, "5303840")
	assert.Contains(t, payload, "5406148.50")
	assert.Contains(t, payload, "5802KH")
	assert.Contains(t, payload, "6224"+"0120BK-20260115-9F3A21C0")

	body, crc := payload[:len(payload)-4], payload[len(payload)-4:]
	assert.True(t, strings.HasSuffix(body, "6304"))
	assert.Equal(t, strings.ToUpper(hex.EncodeToString([]byte{byte(crc16CCITT([]byte(body)) >> 8), byte(crc16CCITT([]byte(body)))})), crc)

	assert.Len(t, KHQRHash(payload), 32)

	_, err = KHQR{AccountID: "x", Currency: "EUR"}.Encode()
	assert.Error(t, err)
}

func newBakongTestAdapter(srv *httptest.Server) *bakongAdapter {
	a := NewBakongAdapter(BakongConfig{
		BaseURL:       srv.URL,
		Token:         "tok",
		AccountID:     "staybook@aclb",
		MerchantName:  "StayBook",
		MerchantCity:  "Phnom Penh",
		WebhookSecret: "whsec",
		Poll:          PollConfig{Interval: time.Millisecond, MaxAttempts: 4},
	}, srv.Client()).(*bakongAdapter)
	return a
}

func TestBakong_CapturePollsUntilPaid(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/check_transaction_by_md5", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc123", body["md5"])

		if atomic.AddInt32(&calls, 1) < 3 {
			w.Write([]byte(`{"responseCode":1,"responseMessage":"Transaction could not be found","errorCode":1,"data":null}`))
			return
		}
		w.Write([]byte(`{"responseCode":0,"responseMessage":"Success","errorCode":null,"data":{"hash":"h","fromAccountId":"guest@abaa","toAccountId":"staybook@aclb","currency":"USD","amount":148.5,"description":""}}`))
	}))
	defer srv.Close()

	res, err := newBakongTestAdapter(srv).Capture(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, decimal.RequireFromString("148.5").Equal(res.Amount))
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, "guest@abaa", res.PayerName)
	assert.Equal(t, int32(3), calls)
}

func TestBakong_CaptureTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"responseCode":1,"responseMessage":"Transaction could not be found","errorCode":1}`))
	}))
	defer srv.Close()

	res, err := newBakongTestAdapter(srv).Capture(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, res.Status)
}

func TestBakong_CaptureExpiredAndFailed(t *testing.T) {
	for code, want := range map[int]Status{bakongErrExpired: StatusExpired, bakongErrFailed: StatusFailed} {
		code, want := code, want
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"responseCode": 1, "errorCode": code, "responseMessage": "x"})
		}))
		res, err := newBakongTestAdapter(srv).Capture(context.Background(), "abc123")
		srv.Close()
		require.NoError(t, err)
		assert.Equal(t, want, res.Status)
	}
}

func TestBakong_CaptureRejectsOtherMerchant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"responseCode":0,"responseMessage":"Success","errorCode":null,"data":{"hash":"h","fromAccountId":"guest@abaa","toAccountId":"someone@wing","currency":"USD","amount":148.5,"description":""}}`))
	}))
	defer srv.Close()

	res, err := newBakongTestAdapter(srv).Capture(context.Background(), "abc123")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrInvariant)
	assert.False(t, IsRetryable(err))
}

func TestBakong_ServerErrorsAreRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newBakongTestAdapter(srv).checkStatus(context.Background(), "abc123")
	assert.True(t, IsRetryable(err))
}

func TestBakong_CreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	a := newBakongTestAdapter(srv)
	a.now = func() time.Time { return time.UnixMilli(1768435200000) }

	intent, err := a.CreateIntent(context.Background(), IntentRequest{Amount: decimal.NewFromInt(10), Currency: "USD", ReferenceID: "BK-1"})
	require.NoError(t, err)
	assert.Equal(t, KHQRHash(intent.ClientPayload["qr"]), intent.ExternalID)
	assert.Equal(t, intent.ExternalID, intent.ClientPayload["md5"])
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestBakong_VerifyWebhook(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	a := newBakongTestAdapter(srv)
	body := []byte(`{"event_id":"evt-9","md5":"abc123","status":"PAID","amount":"148.50","currency":"usd","bill_number":"b-1"}`)

	t.Run("valid", func(t *testing.T) {
		h := http.Header{}
		h.Set(BakongSignatureHeader, sign("whsec", body))
		ev, err := a.VerifyWebhook(context.Background(), WebhookRequest{Payload: body, Headers: h})
		require.NoError(t, err)
		assert.Equal(t, "evt-9", ev.EventID)
		assert.Equal(t, EventCaptureCompleted, ev.Kind)
		assert.Equal(t, "abc123", ev.Result.ExternalID)
		assert.Equal(t, "b-1", ev.Result.ReferenceID)
		assert.Equal(t, "USD", ev.Result.Currency)
	})

	t.Run("tampered", func(t *testing.T) {
		h := http.Header{}
		h.Set(BakongSignatureHeader, sign("other", body))
		_, err := a.VerifyWebhook(context.Background(), WebhookRequest{Payload: body, Headers: h})
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := a.VerifyWebhook(context.Background(), WebhookRequest{Payload: body, Headers: http.Header{}})
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})
}
