package discounts

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/api/middleware"
	"github.com/angelmondragon/estore-backend/api/responses"
	"github.com/angelmondragon/estore-backend/api/validators"
	internaldiscounts "github.com/angelmondragon/estore-backend/internal/discounts"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

const maxCouponCodeLength = 64

type couponResponse struct {
	IsValid        bool   `json:"is_valid"`
	Message        string `json:"message"`
	DiscountAmount string `json:"discount_amount"`
	FinalPrice     string `json:"final_price"`
}

type offerRequest struct {
	ProductIDs []uuid.UUID `json:"product_ids" validate:"required,min=1,dive,required"`
	Quantities []int       `json:"quantities" validate:"required,min=1,dive,gt=0"`
}

type offerResponse struct {
	IsValid            bool        `json:"is_valid"`
	Message            string      `json:"message"`
	DiscountAmount     string      `json:"discount_amount"`
	FinalPrice         string      `json:"final_price"`
	QualifyingProducts []uuid.UUID `json:"qualifying_products"`
	MissingProducts    []uuid.UUID `json:"missing_products,omitempty"`
}

type offerProductRequest struct {
	ProductID             uuid.UUID `json:"product_id" validate:"required"`
	IsPrimary             bool      `json:"is_primary"`
	BundleQuantity        int       `json:"bundle_quantity" validate:"gte=0"`
	BundleDiscountPercent string    `json:"bundle_discount_percent" validate:"omitempty,amount"`
}

type configureOfferRequest struct {
	Products []offerProductRequest `json:"products" validate:"required,min=1,dive"`
}

type offerProductResponse struct {
	ProductID             uuid.UUID `json:"product_id"`
	IsPrimary             bool      `json:"is_primary"`
	BundleQuantity        int       `json:"bundle_quantity"`
	BundleDiscountPercent string    `json:"bundle_discount_percent" validate:"omitempty,amount"`
}

// ValidateCoupon answers GET /validate-coupon/{code}. Business rejections are a
// 200 with is_valid=false; unknown codes and products are 404s.
func ValidateCoupon(svc internaldiscounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "discounts service unavailable"))
			return
		}
		code := validators.SanitizeString(chi.URLParam(r, "code"), maxCouponCodeLength)
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required"))
			return
		}
		cartValue, err := validators.ParseQueryDecimal(r, "cart_value")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseQueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internaldiscounts.CouponInput{
			Code:      code,
			CartValue: cartValue,
			ProductID: productID,
		}
		if userID, ok := middleware.UserUUIDFromContext(r.Context()); ok {
			input.UserID = &userID
		}

		result, err := svc.EvaluateCoupon(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, couponResponse{
			IsValid:        result.Valid,
			Message:        result.Message,
			DiscountAmount: formatAmount(result.DiscountAmount),
			FinalPrice:     formatAmount(result.FinalPrice),
		})
	}
}

// ValidateOffer answers POST /validate-offer/{offer_id}.
func ValidateOffer(svc internaldiscounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "discounts service unavailable"))
			return
		}
		offerID, err := validators.ParseURLUUID(r, "offer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload offerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(payload.ProductIDs) != len(payload.Quantities) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product_ids and quantities must be the same length"))
			return
		}

		result, err := svc.EvaluateOffer(r.Context(), internaldiscounts.OfferInput{
			OfferID:    offerID,
			ProductIDs: payload.ProductIDs,
			Quantities: payload.Quantities,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qualifying := result.QualifyingProducts
		if qualifying == nil {
			qualifying = []uuid.UUID{}
		}
		responses.WriteJSON(w, http.StatusOK, offerResponse{
			IsValid:            result.Valid,
			Message:            result.Message,
			DiscountAmount:     formatAmount(result.DiscountAmount),
			FinalPrice:         formatAmount(result.FinalPrice),
			QualifyingProducts: qualifying,
			MissingProducts:    result.MissingProducts,
		})
	}
}

// ConfigureOfferProducts replaces an offer's product set. Admin only.
func ConfigureOfferProducts(svc internaldiscounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "discounts service unavailable"))
			return
		}
		offerID, err := validators.ParseURLUUID(r, "offerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload configureOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inputs := make([]internaldiscounts.ProductOfferInput, 0, len(payload.Products))
		for _, p := range payload.Products {
			percent := decimal.Zero
			if p.BundleDiscountPercent != "" {
				percent, err = validators.ParseDecimal("bundle_discount_percent", p.BundleDiscountPercent)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
			}
			inputs = append(inputs, internaldiscounts.ProductOfferInput{
				ProductID:             p.ProductID,
				IsPrimary:             p.IsPrimary,
				BundleQuantity:        p.BundleQuantity,
				BundleDiscountPercent: percent,
			})
		}

		rows, err := svc.ConfigureOfferProducts(r.Context(), offerID, inputs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]offerProductResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, offerProductResponse{
				ProductID:             row.ProductID,
				IsPrimary:             row.IsPrimary,
				BundleQuantity:        row.BundleQuantity,
				BundleDiscountPercent: row.BundleDiscountPercent.StringFixed(2),
			})
		}
		responses.WriteSuccess(w, out)
	}
}

func formatAmount(value decimal.Decimal) string {
	return value.StringFixed(2)
}
