package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/api/middleware"
	"github.com/angelmondragon/estore-backend/api/responses"
	"github.com/angelmondragon/estore-backend/api/validators"
	internalorders "github.com/angelmondragon/estore-backend/internal/orders"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/pagination"
)

type placeOrderItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

type placeOrderRequest struct {
	StoreID         uuid.UUID        `json:"estore_id" validate:"required"`
	Items           []placeOrderItem `json:"items" validate:"required,min=1,dive"`
	CouponCode      *string          `json:"coupon_code"`
	CouponProductID *uuid.UUID       `json:"coupon_product_id"`
	OfferID         *uuid.UUID       `json:"offer_id"`
}

type updateItemRequest struct {
	Quantity *int    `json:"quantity" validate:"omitempty,gt=0"`
	Price    *string `json:"price" validate:"omitempty,amount"`
}

// PlaceOrder handles POST /api/v1/orders.
func PlaceOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalorders.PlaceOrderInput{
			StoreID:         payload.StoreID,
			Items:           make([]internalorders.ItemInput, 0, len(payload.Items)),
			CouponProductID: payload.CouponProductID,
			OfferID:         payload.OfferID,
		}
		if payload.CouponCode != nil {
			if code := validators.SanitizeString(*payload.CouponCode, 64); code != "" {
				input.CouponCode = &code
			}
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, internalorders.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		order, err := svc.PlaceOrder(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderResponse(order))
	}
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// List handles GET /api/v1/orders for the caller's own orders.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForUser(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := orderListResponse{Orders: make([]orderResponse, 0, len(page.Orders)), NextCursor: page.NextCursor}
		for i := range page.Orders {
			out.Orders = append(out.Orders, toOrderResponse(&page.Orders[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// Detail handles GET /api/v1/orders/{orderId}.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !canView(r, order) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller"))
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// UpdateItem handles PATCH /api/v1/orders/{orderId}/items/{itemId}. Sellers
// and admins only.
func UpdateItem(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseURLUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internalorders.UpdateItemInput{Quantity: payload.Quantity}
		if payload.Price != nil {
			price, err := validators.ParseDecimal("price", *payload.Price)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Price = &price
		}

		current, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !canManage(r, current) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another store"))
			return
		}

		order, err := svc.UpdateItem(r.Context(), orderID, itemID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

func canView(r *http.Request, order *models.Order) bool {
	if order.UserID.String() == middleware.UserIDFromContext(r.Context()) {
		return true
	}
	return canManage(r, order)
}

// canManage admits admins and sellers whose token is scoped to the order's store.
func canManage(r *http.Request, order *models.Order) bool {
	switch enums.UserRole(middleware.RoleFromContext(r.Context())) {
	case enums.UserRoleAdmin:
		return true
	case enums.UserRoleSeller:
		return strings.EqualFold(middleware.StoreIDFromContext(r.Context()), order.StoreID.String())
	}
	return false
}
