package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"staybook-backend/internal/logger"
	"staybook-backend/internal/service"
)

type userIdentity struct {
	userID  string
	student bool
}

func identity(r *http.Request) userIdentity {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return userIdentity{}
	}
	return userIdentity{userID: claims.UserID, student: claims.Student}
}

type BookingHandler struct {
	bookings service.BookingService
}

func NewBookingHandler(bookings service.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	who := identity(r)
	logger.EnterMethod("BookingHandler.Create", "userID", who.userID, "roomID", req.RoomID)

	res, err := h.bookings.CreateBooking(r.Context(), req.toService(who))
	if err != nil {
		logger.ExitMethodWithError("BookingHandler.Create", err)
		writeError(w, r, err)
		return
	}
	logger.ExitMethod("BookingHandler.Create", "bookingID", res.Booking.ID)
	writeJSON(w, http.StatusCreated, res)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.GetBooking(r.Context(), identity(r).userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) Modify(w http.ResponseWriter, r *http.Request) {
	var req ModifyBookingRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.bookings.ModifyBooking(r.Context(), req.toService(identity(r).userID, mux.Vars(r)["id"]))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *BookingHandler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req ApplyPromoRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.bookings.ApplyPromo(r.Context(), identity(r).userID, mux.Vars(r)["id"], req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelBookingRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.bookings.CancelBooking(r.Context(), identity(r).userID, mux.Vars(r)["id"], req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reject is the admin path for declining a booking with a full refund
func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectBookingRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	logger.Info("Admin rejecting booking", "bookingID", id, "adminID", identity(r).userID)
	res, err := h.bookings.RejectBooking(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
