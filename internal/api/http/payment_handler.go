package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/gateway"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/service"
)

type PaymentHandler struct {
	payments service.PaymentService
}

func NewPaymentHandler(payments service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	intent, err := h.payments.InitiatePayment(r.Context(), identity(r).userID, mux.Vars(r)["id"], domain.PaymentType(req.PaymentType))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req CapturePaymentRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.payments.CapturePayment(r.Context(), identity(r).userID, mux.Vars(r)["id"], req.ExternalID, domain.PaymentType(req.PaymentType))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, captureStatus(res), res)
}

func (h *PaymentHandler) VerifyBakong(w http.ResponseWriter, r *http.Request) {
	var req VerifyBakongRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.payments.VerifyBakongPayment(r.Context(), identity(r).userID, mux.Vars(r)["id"], req.MD5, domain.PaymentType(req.PaymentType))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, captureStatus(res), res)
}

// captureStatus answers 202 while the gateway has not settled the payment yet
func captureStatus(res *service.CaptureResult) int {
	if res.Status.Final() {
		return http.StatusOK
	}
	return http.StatusAccepted
}

func (h *PaymentHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	txns, err := h.payments.ListTransactions(r.Context(), identity(r).userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

// Webhook acknowledges every verified delivery. Processing failures after
// verification are logged by the service and never surface to the gateway.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	method := domain.PaymentMethod(mux.Vars(r)["gateway"])

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.Warn("Webhook body unreadable", "gateway", method, "error", err)
		writeErrorCode(w, http.StatusBadRequest, "invalid_body", "webhook body unreadable")
		return
	}

	err = h.payments.HandleWebhook(r.Context(), method, gateway.WebhookRequest{Payload: payload, Headers: r.Header})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, gateway.ErrUnsupported):
		writeErrorCode(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, r, err)
	}
}
