package payments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/pkg/db/models"
)

type paymentResponse struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        uuid.UUID       `json:"order_id"`
	StoreID        uuid.UUID       `json:"estore_id"`
	PaymentMethod  string          `json:"payment_method"`
	Amount         string          `json:"amount"`
	Status         string          `json:"status"`
	TransactionID  string          `json:"transaction_id"`
	PaymentGateway *string         `json:"payment_gateway"`
	PaymentURL     *string         `json:"payment_url"`
	Platform       string          `json:"platform"`
	DeviceInfo     json.RawMessage `json:"device_info,omitempty"`
	GatewayStatus  *string         `json:"gateway_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toPaymentResponse(p *models.Payment) *paymentResponse {
	if p == nil {
		return nil
	}
	out := &paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		StoreID:       p.StoreID,
		PaymentMethod: string(p.PaymentMethod),
		Amount:        p.Amount.StringFixed(2),
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		PaymentURL:    p.PaymentURL,
		Platform:      string(p.Platform),
		DeviceInfo:    p.DeviceInfo,
		GatewayStatus: p.GatewayStatus,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.PaymentGateway != nil {
		gateway := string(*p.PaymentGateway)
		out.PaymentGateway = &gateway
	}
	return out
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type callbackResponse struct {
	Success bool             `json:"success"`
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Payment *paymentResponse `json:"payment"`
}
