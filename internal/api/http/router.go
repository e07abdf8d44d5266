package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// HealthCheck reports liveness for load balancers
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter wires every route. Security levels per route live in
// config.EndpointSecurityConfig and are enforced by the auth middleware.
func NewRouter(bookings *BookingHandler, payments *PaymentHandler, auth *AuthMiddleware) *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware, auth.Handler)

	r.HandleFunc("/healthz", HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/{gateway}", payments.Webhook).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/bookings", bookings.Create).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}", bookings.Get).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", bookings.Modify).Methods(http.MethodPatch)
	api.HandleFunc("/bookings/{id}/promo", bookings.ApplyPromo).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/cancel", bookings.Cancel).Methods(http.MethodPost)

	api.HandleFunc("/bookings/{id}/payments", payments.Initiate).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/payments/capture", payments.Capture).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/payments/bakong/verify", payments.VerifyBakong).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/transactions", payments.Transactions).Methods(http.MethodGet)

	api.HandleFunc("/admin/bookings/{id}/reject", bookings.Reject).Methods(http.MethodPost)

	return r
}
