package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/gateway"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/service"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeError maps service and gateway errors onto HTTP statuses
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *domain.ValidationError
		reject *service.PromoRejection
		vals   validator.ValidationErrors
	)

	switch {
	case errors.As(err, &reject):
		writeErrorCode(w, http.StatusBadRequest, "promo_"+string(reject.Reason), err.Error())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "validation_failed", Message: "validation failed", Fields: verr.Fields}})
	case errors.As(err, &vals):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "validation_failed", Message: "validation failed", Fields: fieldErrors(vals)}})
	case errors.Is(err, domain.ErrValidation):
		writeErrorCode(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, gateway.ErrSignatureInvalid):
		writeErrorCode(w, http.StatusBadRequest, "signature_invalid", "webhook signature invalid")
	case errors.Is(err, gateway.ErrUnsupported):
		writeErrorCode(w, http.StatusBadRequest, "gateway_unsupported", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeErrorCode(w, http.StatusConflict, "conflict", err.Error())
	case gateway.IsRetryable(err):
		logger.Warn("Gateway unavailable", "path", r.URL.Path, "error", err)
		writeErrorCode(w, http.StatusBadGateway, "gateway_unavailable", "payment gateway unavailable, retry later")
	default:
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func fieldErrors(vals validator.ValidationErrors) []domain.FieldError {
	out := make([]domain.FieldError, 0, len(vals))
	for _, fe := range vals {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out = append(out, domain.FieldError{Field: fe.Namespace(), Message: msg})
	}
	return out
}
