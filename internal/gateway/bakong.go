package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/logger"
)

// Bakong check_transaction_by_md5 error codes
const (
	bakongErrNotFound = 1
	bakongErrFailed   = 3
	bakongErrExpired  = 4
)

// BakongSignatureHeader carries the hex HMAC-SHA256 of a callback body
const BakongSignatureHeader = "X-Bakong-Signature"

// BakongConfig holds merchant identity and the polling bounds used by Capture
type BakongConfig struct {
	BaseURL       string
	Token         string
	AccountID     string
	MerchantName  string
	MerchantCity  string
	WebhookSecret string
	Poll          PollConfig
}

type bakongAdapter struct {
	cfg  BakongConfig
	http *http.Client
	now  func() time.Time
}

// NewBakongAdapter builds the KHQR adapter. Bakong settles by QR scan, so
// Capture polls the md5 status endpoint instead of issuing a capture call.
func NewBakongAdapter(cfg BakongConfig, httpClient *http.Client) Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &bakongAdapter{cfg: cfg, http: httpClient, now: time.Now}
}

func (a *bakongAdapter) Name() domain.PaymentMethod {
	return domain.PaymentMethodBakong
}

func (a *bakongAdapter) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	qr := KHQR{
		AccountID:    a.cfg.AccountID,
		MerchantName: a.cfg.MerchantName,
		MerchantCity: a.cfg.MerchantCity,
		Currency:     req.Currency,
		Amount:       req.Amount,
		BillNumber:   req.ReferenceID,
		CreatedAt:    a.now(),
	}
	payload, err := qr.Encode()
	if err != nil {
		return nil, err
	}
	hash := KHQRHash(payload)
	logger.Info("KHQR generated", "reference_id", req.ReferenceID, "md5", hash, "amount", req.Amount.String())

	return &Intent{
		ExternalID: hash,
		ClientPayload: map[string]string{
			"qr":  payload,
			"md5": hash,
		},
	}, nil
}

// Capture polls until Bakong reports the QR paid, failed or expired. When the
// poll budget runs out the result carries StatusTimeout.
func (a *bakongAdapter) Capture(ctx context.Context, externalID string) (*TransactionResult, error) {
	return Poll(ctx, externalID, a.cfg.Poll, func(ctx context.Context) (*TransactionResult, error) {
		return a.checkStatus(ctx, externalID)
	})
}

// Refund has no Bakong API counterpart; the refund is recorded for a manual
// transfer back to the payer's account.
func (a *bakongAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	amount := req.Amount.Decimal
	logger.Warn("Bakong refund requires manual transfer", "external_id", req.ExternalID, "amount", amount.String(), "reason", req.Reason)
	return &RefundResult{Status: "manual_transfer_required", Amount: amount}, nil
}

type bakongCallback struct {
	EventID       string          `json:"event_id"`
	MD5           string          `json:"md5"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	BillNumber    string          `json:"bill_number"`
	FromAccountID string          `json:"from_account_id"`
}

func (a *bakongAdapter) VerifyWebhook(ctx context.Context, req WebhookRequest) (*WebhookEvent, error) {
	sig, err := hex.DecodeString(req.Headers.Get(BakongSignatureHeader))
	if err != nil || len(sig) == 0 {
		return nil, ErrSignatureInvalid
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(req.Payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrSignatureInvalid
	}

	var cb bakongCallback
	if err := json.Unmarshal(req.Payload, &cb); err != nil {
		return nil, fmt.Errorf("decode bakong callback: %w", err)
	}

	out := &WebhookEvent{
		EventID: cb.EventID,
		Type:    cb.Status,
		Result: TransactionResult{
			ExternalID:  cb.MD5,
			ReferenceID: cb.BillNumber,
			Amount:      cb.Amount,
			Currency:    strings.ToUpper(cb.Currency),
			PayerName:   cb.FromAccountID,
			Raw:         req.Payload,
		},
	}
	if out.EventID == "" {
		out.EventID = cb.MD5 + ":" + cb.Status
	}
	switch strings.ToUpper(cb.Status) {
	case "PAID":
		out.Kind = EventCaptureCompleted
		out.Result.Status = StatusCompleted
	case "FAILED":
		out.Kind = EventCaptureFailed
		out.Result.Status = StatusFailed
	case "EXPIRED":
		out.Kind = EventCaptureFailed
		out.Result.Status = StatusExpired
	default:
		out.Kind = EventIgnored
	}
	return out, nil
}

type bakongCheckResponse struct {
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	ErrorCode       *int   `json:"errorCode"`
	Data            *struct {
		Hash          string          `json:"hash"`
		FromAccountID string          `json:"fromAccountId"`
		ToAccountID   string          `json:"toAccountId"`
		Currency      string          `json:"currency"`
		Amount        decimal.Decimal `json:"amount"`
		Description   string          `json:"description"`
	} `json:"data"`
}

func (a *bakongAdapter) checkStatus(ctx context.Context, hash string) (*TransactionResult, error) {
	started := time.Now()
	logger.GatewayCall("bakong", "check_transaction_by_md5", "md5", hash)

	body, _ := json.Marshal(map[string]string{"md5": hash})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.cfg.BaseURL, "/")+"/v1/check_transaction_by_md5", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.Token)

	resp, err := a.http.Do(req)
	if err != nil {
		logger.GatewayResult("bakong", "check_transaction_by_md5", started, err, "md5", hash)
		return nil, &RetryableError{Gateway: domain.PaymentMethodBakong, Operation: "check_status", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RetryableError{Gateway: domain.PaymentMethodBakong, Operation: "check_status", Err: err}
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		err := fmt.Errorf("bakong returned HTTP %d", resp.StatusCode)
		logger.GatewayResult("bakong", "check_transaction_by_md5", started, err, "md5", hash)
		return nil, &RetryableError{Gateway: domain.PaymentMethodBakong, Operation: "check_status", Err: err}
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("bakong returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		logger.GatewayResult("bakong", "check_transaction_by_md5", started, err, "md5", hash)
		return nil, err
	}

	var check bakongCheckResponse
	if err := json.Unmarshal(raw, &check); err != nil {
		return nil, fmt.Errorf("decode bakong response: %w", err)
	}
	logger.GatewayResult("bakong", "check_transaction_by_md5", started, nil, "md5", hash, "response_code", check.ResponseCode)

	res := &TransactionResult{ExternalID: hash, Raw: raw}
	switch {
	case check.ResponseCode == 0 && check.Data != nil:
		if !strings.EqualFold(check.Data.ToAccountID, a.cfg.AccountID) {
			return nil, domain.Invariantf("bakong payment %s was paid to %q, not the merchant account", hash, check.Data.ToAccountID)
		}
		res.Status = StatusCompleted
		res.Amount = check.Data.Amount
		res.Currency = strings.ToUpper(check.Data.Currency)
		res.PayerName = check.Data.FromAccountID
	case check.ErrorCode != nil && *check.ErrorCode == bakongErrNotFound:
		res.Status = StatusPending
	case check.ErrorCode != nil && *check.ErrorCode == bakongErrExpired:
		res.Status = StatusExpired
	case check.ErrorCode != nil && *check.ErrorCode == bakongErrFailed:
		res.Status = StatusFailed
	default:
		return nil, errors.New("bakong: unexpected response " + check.ResponseMessage)
	}
	return res, nil
}
