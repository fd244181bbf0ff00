package discounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/estore-backend/pkg/db"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/money"
)

const (
	msgOfferApplied      = "offer applied successfully"
	msgOfferUnconfigured = "offer has no configured products"
	msgNoPrimaryProduct  = "bundle offer has no primary product"
	msgMissingBundle     = "bundle is incomplete: required products are missing"
	msgNoQualifying      = "no qualifying products in cart"
	msgOfferMisconfig    = "offer is misconfigured"
)

// CartLine is one distinct product in the evaluated cart.
type CartLine struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l CartLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (s *service) EvaluateOffer(ctx context.Context, input OfferInput) (*OfferResult, error) {
	if input.OfferID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id is required")
	}
	if len(input.ProductIDs) == 0 || len(input.ProductIDs) != len(input.Quantities) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_ids and quantities must be non-empty and of equal length")
	}

	offer, err := s.repo.FindOffer(ctx, input.OfferID)
	if err != nil {
		return nil, notFound(err, "offer not found")
	}
	lines, err := s.cartLines(ctx, input.ProductIDs, input.Quantities)
	if err != nil {
		return nil, err
	}
	return EvaluateOfferLines(offer, lines, s.now()), nil
}

// cartLines merges duplicate product ids and snapshots current listing prices.
func (s *service) cartLines(ctx context.Context, ids []uuid.UUID, quantities []int) ([]CartLine, error) {
	order := make([]uuid.UUID, 0, len(ids))
	qty := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		if id == uuid.Nil || quantities[i] <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "every product needs a valid id and a positive quantity")
		}
		if _, seen := qty[id]; !seen {
			order = append(order, id)
		}
		qty[id] += quantities[i]
	}

	products, err := s.repo.FindProducts(ctx, order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	prices := make(map[uuid.UUID]decimal.Decimal, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}

	lines := make([]CartLine, 0, len(order))
	for _, id := range order {
		price, ok := prices[id]
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", id)
		}
		lines = append(lines, CartLine{ProductID: id, Quantity: qty[id], UnitPrice: price})
	}
	return lines, nil
}

// EvaluateOfferLines prices lines against offer at now. The final price is the
// cart total less the discount.
func EvaluateOfferLines(offer *models.Offer, lines []CartLine, now time.Time) *OfferResult {
	cartTotal := decimal.Zero
	for _, l := range lines {
		cartTotal = cartTotal.Add(l.Total())
	}
	cartTotal = money.Round(cartTotal)

	result := &OfferResult{
		DiscountAmount:     decimal.Zero,
		FinalPrice:         cartTotal,
		QualifyingProducts: []uuid.UUID{},
	}
	if msg := availability(offer.IsActive, offer.ValidFrom, offer.ValidUntil, now); msg != "" {
		result.Message = msg
		return result
	}
	if len(offer.Products) == 0 {
		result.Message = msgOfferUnconfigured
		return result
	}

	var (
		discount decimal.Decimal
		msg      string
	)
	switch offer.OfferType {
	case enums.OfferTypeBuyXGetY:
		discount, msg = buyXGetY(offer, lines, result)
	case enums.OfferTypeBundle:
		discount, msg = bundle(offer, lines, result)
	case enums.OfferTypeDiscount:
		discount, msg = direct(offer, lines, result)
	default:
		msg = msgOfferMisconfig
	}
	if msg != "" {
		result.Message = msg
		return result
	}

	discount = money.Round(money.Min(money.ClampNonNegative(discount), cartTotal))
	result.Valid = true
	result.Message = msgOfferApplied
	result.DiscountAmount = discount
	result.FinalPrice = money.Round(cartTotal.Sub(discount))
	return result
}

func members(offer *models.Offer) map[uuid.UUID]models.ProductOffer {
	out := make(map[uuid.UUID]models.ProductOffer, len(offer.Products))
	for _, po := range offer.Products {
		out[po.ProductID] = po
	}
	return out
}

// buyXGetY discounts get_discount_percent of the qualifying value, scaled by the
// share of qualifying units that count as discounted items. Every buy_quantity
// qualifying units earn get_quantity discounted ones, so five units on a buy 2
// get 1 offer make two sets and two discounted units.
func buyXGetY(offer *models.Offer, lines []CartLine, result *OfferResult) (decimal.Decimal, string) {
	if offer.BuyQuantity <= 0 || offer.GetQuantity <= 0 {
		return decimal.Zero, msgOfferMisconfig
	}
	set := members(offer)
	totalQty := 0
	totalPrice := decimal.Zero
	for _, l := range lines {
		if _, ok := set[l.ProductID]; !ok {
			continue
		}
		totalQty += l.Quantity
		totalPrice = totalPrice.Add(l.Total())
		result.QualifyingProducts = append(result.QualifyingProducts, l.ProductID)
	}

	sets := totalQty / offer.BuyQuantity
	if sets == 0 {
		return decimal.Zero, fmt.Sprintf("need to buy at least %d items", offer.BuyQuantity)
	}
	discountItems := sets * offer.GetQuantity
	if discountItems > totalQty {
		discountItems = totalQty
	}
	share := decimal.NewFromInt(int64(discountItems)).Div(decimal.NewFromInt(int64(totalQty)))
	return money.Percent(totalPrice, offer.GetDiscountPercent).Mul(share), ""
}

// bundle requires every member at its bundle quantity and discounts the bundle
// value by the primary member's percent.
func bundle(offer *models.Offer, lines []CartLine, result *OfferResult) (decimal.Decimal, string) {
	var primary *models.ProductOffer
	for i := range offer.Products {
		if offer.Products[i].IsPrimary {
			primary = &offer.Products[i]
			break
		}
	}
	if primary == nil {
		return decimal.Zero, msgNoPrimaryProduct
	}

	inCart := make(map[uuid.UUID]CartLine, len(lines))
	for _, l := range lines {
		inCart[l.ProductID] = l
	}

	bundleValue := decimal.Zero
	for _, po := range offer.Products {
		required := po.BundleQuantity
		if required <= 0 {
			required = 1
		}
		line, ok := inCart[po.ProductID]
		if !ok || line.Quantity < required {
			result.MissingProducts = append(result.MissingProducts, po.ProductID)
			continue
		}
		result.QualifyingProducts = append(result.QualifyingProducts, po.ProductID)
		bundleValue = bundleValue.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(required))))
	}
	if len(result.MissingProducts) > 0 {
		result.QualifyingProducts = []uuid.UUID{}
		return decimal.Zero, msgMissingBundle
	}
	return money.Percent(bundleValue, primary.BundleDiscountPercent), ""
}

// direct discounts get_discount_percent of every qualifying line.
func direct(offer *models.Offer, lines []CartLine, result *OfferResult) (decimal.Decimal, string) {
	set := members(offer)
	total := decimal.Zero
	for _, l := range lines {
		if _, ok := set[l.ProductID]; !ok {
			continue
		}
		total = total.Add(l.Total())
		result.QualifyingProducts = append(result.QualifyingProducts, l.ProductID)
	}
	if len(result.QualifyingProducts) == 0 {
		return decimal.Zero, msgNoQualifying
	}
	return money.Percent(total, offer.GetDiscountPercent), ""
}

// ConfigureOfferProducts replaces the product set of an offer in one transaction.
func (s *service) ConfigureOfferProducts(ctx context.Context, offerID uuid.UUID, inputs []ProductOfferInput) ([]models.ProductOffer, error) {
	if offerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id is required")
	}
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one product is required")
	}

	rows := make([]models.ProductOffer, 0, len(inputs))
	ids := make([]uuid.UUID, 0, len(inputs))
	seen := make(map[uuid.UUID]struct{}, len(inputs))
	hasPrimary := false
	for _, in := range inputs {
		if in.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if _, dup := seen[in.ProductID]; dup {
			return nil, pkgerrors.Newf(pkgerrors.CodeIntegrity, "product %s is assigned to the offer more than once", in.ProductID)
		}
		seen[in.ProductID] = struct{}{}
		if in.BundleQuantity < 0 || in.BundleDiscountPercent.IsNegative() || in.BundleDiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "bundle quantity and discount percent must be within range")
		}
		qty := in.BundleQuantity
		if qty == 0 {
			qty = 1
		}
		hasPrimary = hasPrimary || in.IsPrimary
		ids = append(ids, in.ProductID)
		rows = append(rows, models.ProductOffer{
			ID:                    uuid.New(),
			OfferID:               offerID,
			ProductID:             in.ProductID,
			IsPrimary:             in.IsPrimary,
			BundleQuantity:        qty,
			BundleDiscountPercent: in.BundleDiscountPercent,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		offer, err := repo.FindOffer(ctx, offerID)
		if err != nil {
			return notFound(err, "offer not found")
		}
		if offer.OfferType == enums.OfferTypeBundle && !hasPrimary {
			return pkgerrors.New(pkgerrors.CodeValidation, msgNoPrimaryProduct)
		}
		products, err := repo.FindProducts(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
		}
		if len(products) != len(ids) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "one or more products not found")
		}
		if err := repo.ReplaceOfferProducts(ctx, offerID, rows); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "product already assigned to offer")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace offer products")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"offer_id": offerID.String(), "products": len(rows)})
	s.logg.Info(logCtx, "offer products configured")
	return rows, nil
}
