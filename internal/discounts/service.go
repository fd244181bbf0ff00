package discounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/estore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service evaluates coupons and offers. Evaluation is read only; RedeemCoupon
// is the only write and runs in the caller's transaction.
type Service interface {
	EvaluateCoupon(ctx context.Context, input CouponInput) (*CouponResult, error)
	EvaluateOffer(ctx context.Context, input OfferInput) (*OfferResult, error)
	ConfigureOfferProducts(ctx context.Context, offerID uuid.UUID, inputs []ProductOfferInput) ([]models.ProductOffer, error)
	RedeemCoupon(ctx context.Context, tx *gorm.DB, couponID uuid.UUID, userID *uuid.UUID) error
}

// CouponInput is a coupon check against a cart. ProductID is required for
// product-scoped coupons; UserID is nil for anonymous callers.
type CouponInput struct {
	Code      string
	CartValue decimal.Decimal
	ProductID *uuid.UUID
	UserID    *uuid.UUID
}

type CouponResult struct {
	Valid          bool
	Message        string
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
	CouponID       uuid.UUID
}

type OfferInput struct {
	OfferID    uuid.UUID
	ProductIDs []uuid.UUID
	Quantities []int
}

type OfferResult struct {
	Valid              bool
	Message            string
	DiscountAmount     decimal.Decimal
	FinalPrice         decimal.Decimal
	QualifyingProducts []uuid.UUID
	MissingProducts    []uuid.UUID
}

// ProductOfferInput is one member of an offer's configured product set.
type ProductOfferInput struct {
	ProductID             uuid.UUID
	IsPrimary             bool
	BundleQuantity        int
	BundleDiscountPercent decimal.Decimal
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("discounts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg, now: time.Now}, nil
}

// availability reports why a discount with the given window and flag cannot be
// used at now. An empty string means it is usable.
func availability(active bool, from, until, now time.Time) string {
	switch {
	case !active:
		return "this discount is not active"
	case now.Before(from):
		return "this discount is not valid yet"
	case now.After(until):
		return "this discount has expired"
	}
	return ""
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
