package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/service"
	"staybook-backend/internal/utils"
)

// maxBodyBytes caps JSON request bodies and webhook payloads
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type GuestDetailsRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required,max=32"`
	SpecialRequests string `json:"special_requests" validate:"max=1000"`
}

func (g GuestDetailsRequest) toDomain() domain.GuestDetails {
	return domain.GuestDetails{
		Name:            strings.TrimSpace(g.Name),
		Email:           strings.TrimSpace(g.Email),
		Phone:           strings.TrimSpace(g.Phone),
		SpecialRequests: g.SpecialRequests,
	}
}

type CreateBookingRequest struct {
	RoomID        string              `json:"room_id" validate:"required"`
	CheckIn       string              `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut      string              `json:"check_out" validate:"required,datetime=2006-01-02"`
	Adults        int                 `json:"adults" validate:"min=1"`
	Children      int                 `json:"children" validate:"min=0"`
	GuestDetails  GuestDetailsRequest `json:"guest_details"`
	PaymentMethod string              `json:"payment_method" validate:"required,oneof=paypal stripe bakong"`
	PaymentPlan   string              `json:"payment_plan" validate:"required,oneof=deposit milestone full"`
	PromoCode     string              `json:"promo_code" validate:"omitempty,max=64"`
}

func (r CreateBookingRequest) toService(claims userIdentity) service.CreateBookingRequest {
	checkIn, _ := utils.ParseDate(r.CheckIn)
	checkOut, _ := utils.ParseDate(r.CheckOut)
	return service.CreateBookingRequest{
		UserID:          claims.userID,
		RoomID:          r.RoomID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		Adults:          r.Adults,
		Children:        r.Children,
		GuestDetails:    r.GuestDetails.toDomain(),
		PaymentMethod:   domain.PaymentMethod(r.PaymentMethod),
		PaymentPlan:     domain.PaymentPlan(r.PaymentPlan),
		PromoCode:       strings.TrimSpace(r.PromoCode),
		StudentEligible: claims.student,
	}
}

// ModifyBookingRequest fields are optional; absent fields keep stored values
type ModifyBookingRequest struct {
	CheckIn      *string              `json:"check_in" validate:"omitempty,datetime=2006-01-02"`
	CheckOut     *string              `json:"check_out" validate:"omitempty,datetime=2006-01-02"`
	Adults       *int                 `json:"adults" validate:"omitempty,min=1"`
	Children     *int                 `json:"children" validate:"omitempty,min=0"`
	GuestDetails *GuestDetailsRequest `json:"guest_details" validate:"omitempty"`
}

func (r ModifyBookingRequest) toService(userID, bookingID string) service.ModifyBookingRequest {
	out := service.ModifyBookingRequest{
		UserID:    userID,
		BookingID: bookingID,
		Adults:    r.Adults,
		Children:  r.Children,
	}
	if r.CheckIn != nil {
		t, _ := utils.ParseDate(*r.CheckIn)
		out.CheckIn = &t
	}
	if r.CheckOut != nil {
		t, _ := utils.ParseDate(*r.CheckOut)
		out.CheckOut = &t
	}
	if r.GuestDetails != nil {
		g := r.GuestDetails.toDomain()
		out.GuestDetails = &g
	}
	return out
}

type ApplyPromoRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type RejectBookingRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type InitiatePaymentRequest struct {
	PaymentType string `json:"payment_type" validate:"required,oneof=deposit balance milestone_1 milestone_2 milestone_3 full"`
}

type CapturePaymentRequest struct {
	ExternalID  string         `json:"external_id" validate:"required,max=128"`
	PaymentType string `json:"payment_type" validate:"required,oneof=deposit balance milestone_1 milestone_2 milestone_3 full"`
}

type VerifyBakongRequest struct {
	MD5         string         `json:"md5" validate:"required,len=32,hexadecimal"`
	PaymentType string `json:"payment_type" validate:"required,oneof=deposit balance milestone_1 milestone_2 milestone_3 full"`
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// An empty body is treated as an empty object.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return validate.Struct(dst)
}
