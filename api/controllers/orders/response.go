package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/pkg/db/models"
)

type orderItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	Subtotal  string    `json:"subtotal"`
	Status    string    `json:"status"`
}

type orderResponse struct {
	ID                  uuid.UUID           `json:"id"`
	OrderNumber         string              `json:"order_number"`
	UserID              uuid.UUID           `json:"user_id"`
	StoreID             uuid.UUID           `json:"estore_id"`
	ItemsTotal          string              `json:"items_total"`
	CouponID            *uuid.UUID          `json:"coupon_id,omitempty"`
	CouponDiscount      string              `json:"coupon_discount"`
	OfferID             *uuid.UUID          `json:"offer_id,omitempty"`
	OfferDiscount       string              `json:"offer_discount"`
	TotalAmount         string              `json:"total_amount"`
	PaymentStatus       string              `json:"payment_status"`
	ProductListingCount int                 `json:"product_listing_count"`
	TotalUnits          int                 `json:"total_units"`
	Items               []orderItemResponse `json:"items"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

func toOrderResponse(o *models.Order) orderResponse {
	out := orderResponse{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber,
		UserID:              o.UserID,
		StoreID:             o.StoreID,
		ItemsTotal:          o.ItemsTotal.StringFixed(2),
		CouponID:            o.CouponID,
		CouponDiscount:      o.CouponDiscount.StringFixed(2),
		OfferID:             o.OfferID,
		OfferDiscount:       o.OfferDiscount.StringFixed(2),
		TotalAmount:         o.TotalAmount.StringFixed(2),
		PaymentStatus:       string(o.PaymentStatus),
		ProductListingCount: o.ProductListingCount,
		TotalUnits:          o.TotalUnits,
		Items:               make([]orderItemResponse, 0, len(o.Items)),
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
	for _, item := range o.Items {
		out.Items = append(out.Items, orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
			Subtotal:  item.Subtotal.StringFixed(2),
			Status:    string(item.Status),
		})
	}
	return out
}
