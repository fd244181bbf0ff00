package payments

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/api/middleware"
	"github.com/angelmondragon/estore-backend/api/responses"
	"github.com/angelmondragon/estore-backend/api/validators"
	internalpayments "github.com/angelmondragon/estore-backend/internal/payments"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

type customerRequest struct {
	Phone string `json:"phone"`
	Email string `json:"email" validate:"omitempty,email"`
	Name  string `json:"name"`
}

type createPaymentRequest struct {
	OrderID        uuid.UUID       `json:"order_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	StoreID        uuid.UUID       `json:"estore_id" validate:"required"`
	PaymentGateway string          `json:"payment_gateway" validate:"omitempty,oneof=phonepe cashfree"`
	PaymentMethod  string          `json:"payment_method" validate:"omitempty,oneof=pg cod"`
	Platform       string          `json:"platform" validate:"omitempty,oneof=web mobile api"`
	DeviceInfo     json.RawMessage `json:"device_info"`
	Customer       customerRequest `json:"customer"`
}

type mobileCallbackRequest struct {
	TransactionID string           `json:"transaction_id" validate:"required"`
	Status        string           `json:"status"`
	Amount        *decimal.Decimal `json:"amount"`
	OrderID       *uuid.UUID       `json:"order_id"`
	Platform      string           `json:"platform" validate:"omitempty,oneof=web mobile api"`
}

// CreatePayment handles POST /payments/.
func CreatePayment(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		var payload createPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalpayments.CreatePaymentInput{
			OrderID:    payload.OrderID,
			StoreID:    payload.StoreID,
			Amount:     payload.Amount,
			Method:     enums.PaymentMethod(payload.PaymentMethod),
			Platform:   enums.PaymentPlatform(payload.Platform),
			DeviceInfo: payload.DeviceInfo,
			Customer: internalpayments.Customer{
				Phone: strings.TrimSpace(payload.Customer.Phone),
				Email: strings.TrimSpace(payload.Customer.Email),
				Name:  validators.SanitizeString(payload.Customer.Name, 120),
			},
		}
		if payload.PaymentGateway != "" {
			gateway := enums.PaymentGateway(payload.PaymentGateway)
			input.Gateway = &gateway
		}

		payment, err := svc.CreatePayment(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusCreated, toPaymentResponse(payment))
	}
}

// VerifyPayment handles GET /verify-payment. Gateway trouble never fails the
// request; the last known state is returned instead.
func VerifyPayment(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		transactionID := validators.SanitizeString(r.URL.Query().Get("transaction_id"), 128)
		if transactionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "transaction_id is required"))
			return
		}
		result, err := svc.VerifyPayment(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, toPaymentResponse(result.Payment))
	}
}

// MobileCallback handles POST /payment-callback/mobile/.
func MobileCallback(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		var payload mobileCallbackRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.MobileCallback(r.Context(), internalpayments.MobileCallbackInput{
			TransactionID: strings.TrimSpace(payload.TransactionID),
			Status:        payload.Status,
			Amount:        payload.Amount,
			OrderID:       payload.OrderID,
			Platform:      enums.PaymentPlatform(payload.Platform),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, callbackResponse{
			Success: result.Success,
			Status:  string(result.Status),
			Message: result.Message,
			Payment: toPaymentResponse(result.Payment),
		})
	}
}
