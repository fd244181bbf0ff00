package discounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/money"
)

const (
	msgCouponApplied       = "coupon applied successfully"
	msgCouponExhausted     = "coupon usage limit reached"
	msgLoginRequired       = "login required to use this coupon"
	msgUserLimitExceeded   = "usage limit exceeded"
	msgProductRequired     = "product_id is required for this coupon"
	msgMinimumCartTemplate = "minimum cart value of %s required"
)

func (s *service) EvaluateCoupon(ctx context.Context, input CouponInput) (*CouponResult, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if input.CartValue.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart_value must be non-negative")
	}
	cartValue := money.Round(input.CartValue)

	coupon, err := s.repo.FindCouponByCode(ctx, code)
	if err != nil {
		return nil, notFound(err, "coupon not found")
	}
	invalid := func(message string) *CouponResult {
		return &CouponResult{
			Message:        message,
			DiscountAmount: decimal.Zero,
			FinalPrice:     cartValue,
			CouponID:       coupon.ID,
		}
	}

	if msg := couponAvailability(coupon, s.now()); msg != "" {
		return invalid(msg), nil
	}

	if coupon.PerUserLimit > 0 {
		if input.UserID == nil {
			return invalid(msgLoginRequired), nil
		}
		usage, err := s.repo.FindUsage(ctx, coupon.ID, *input.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon usage")
		}
		if usage != nil && usage.UsedCount >= coupon.PerUserLimit {
			return invalid(msgUserLimitExceeded), nil
		}
	}

	if cartValue.LessThan(coupon.MinCartValue) {
		return invalid(fmt.Sprintf(msgMinimumCartTemplate, money.String(coupon.MinCartValue))), nil
	}

	base := cartValue
	if coupon.CouponType == enums.CouponTypeProduct {
		if input.ProductID == nil || *input.ProductID == uuid.Nil {
			return invalid(msgProductRequired), nil
		}
		products, err := s.repo.FindProducts(ctx, []uuid.UUID{*input.ProductID})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		if len(products) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		base = products[0].Price
	}

	discount := CouponDiscount(coupon, base)
	discount = money.Min(discount, cartValue)
	return &CouponResult{
		Valid:          true,
		Message:        msgCouponApplied,
		DiscountAmount: discount,
		FinalPrice:     money.Round(money.ClampNonNegative(cartValue.Sub(discount))),
		CouponID:       coupon.ID,
	}, nil
}

// CouponDiscount applies the coupon's math to base. Percentage discounts are
// capped at max_discount_amount when set; no discount ever exceeds base.
func CouponDiscount(coupon *models.Coupon, base decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		discount = money.Percent(base, coupon.DiscountValue)
		if coupon.MaxDiscountAmount.Valid {
			discount = money.Min(discount, coupon.MaxDiscountAmount.Decimal)
		}
	case enums.DiscountTypeFixed:
		discount = coupon.DiscountValue
	default:
		return decimal.Zero
	}
	discount = money.Min(money.ClampNonNegative(discount), base)
	return money.Round(discount)
}

func couponAvailability(coupon *models.Coupon, now time.Time) string {
	if msg := availability(coupon.IsActive, coupon.ValidFrom, coupon.ValidUntil, now); msg != "" {
		return msg
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return msgCouponExhausted
	}
	return ""
}

// RedeemCoupon consumes one use of the coupon inside tx. The coupon row is locked
// and every limit rechecked, so concurrent checkouts cannot overshoot usage_limit.
func (s *service) RedeemCoupon(ctx context.Context, tx *gorm.DB, couponID uuid.UUID, userID *uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	coupon, err := repo.FindCouponForUpdate(ctx, couponID)
	if err != nil {
		return notFound(err, "coupon not found")
	}
	if msg := couponAvailability(coupon, s.now()); msg != "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, msg)
	}
	if coupon.PerUserLimit > 0 {
		if userID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, msgLoginRequired)
		}
		usage, err := repo.FindUsage(ctx, couponID, *userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon usage")
		}
		if usage != nil && usage.UsedCount >= coupon.PerUserLimit {
			return pkgerrors.New(pkgerrors.CodeStateConflict, msgUserLimitExceeded)
		}
	}

	ok, err := repo.IncrementCouponUsage(ctx, couponID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment coupon usage")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, msgCouponExhausted)
	}
	if userID != nil {
		if err := repo.RecordUserUsage(ctx, couponID, *userID, s.now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record coupon usage")
		}
	}

	logCtx := s.logg.WithField(ctx, "coupon_id", couponID.String())
	s.logg.Info(logCtx, "coupon redeemed")
	return nil
}
