package discounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
)

func TestBuyXGetYDiscountsShareOfQualifyingValue(t *testing.T) {
	svc, conn := newTestService(t)
	tee := seedProduct(t, conn, "10.00")
	offer := seedOffer(t, conn, models.Offer{
		Name:               "buy 2 get 1 half off",
		OfferType:          enums.OfferTypeBuyXGetY,
		BuyQuantity:        2,
		GetQuantity:        1,
		GetDiscountPercent: dec("50"),
	}, models.ProductOffer{ProductID: tee.ID, IsPrimary: true, BundleQuantity: 1})

	cases := []struct {
		qty      int
		discount string
		final    string
	}{
		{qty: 2, discount: "5.00", final: "15.00"},
		{qty: 4, discount: "10.00", final: "30.00"},
		{qty: 5, discount: "10.00", final: "40.00"},
		{qty: 7, discount: "15.00", final: "55.00"},
	}
	for _, tc := range cases {
		res, err := svc.EvaluateOffer(context.Background(), OfferInput{
			OfferID:    offer.ID,
			ProductIDs: []uuid.UUID{tee.ID},
			Quantities: []int{tc.qty},
		})
		require.NoError(t, err)
		assert.True(t, res.Valid, "qty %d", tc.qty)
		assert.Equal(t, tc.discount, res.DiscountAmount.StringFixed(2), "qty %d", tc.qty)
		assert.Equal(t, tc.final, res.FinalPrice.StringFixed(2), "qty %d", tc.qty)
		assert.Equal(t, []uuid.UUID{tee.ID}, res.QualifyingProducts)
	}

	res, err := svc.EvaluateOffer(context.Background(), OfferInput{
		OfferID:    offer.ID,
		ProductIDs: []uuid.UUID{tee.ID},
		Quantities: []int{1},
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "need to buy at least 2 items", res.Message)
	assert.Equal(t, "10.00", res.FinalPrice.StringFixed(2))
}

func TestBuyXGetYCapsDiscountedItemsAtQualifyingQuantity(t *testing.T) {
	svc, conn := newTestService(t)
	mug := seedProduct(t, conn, "10.00")
	offer := seedOffer(t, conn, models.Offer{
		Name:               "buy 1 get 2 half off",
		OfferType:          enums.OfferTypeBuyXGetY,
		BuyQuantity:        1,
		GetQuantity:        2,
		GetDiscountPercent: dec("50"),
	}, models.ProductOffer{ProductID: mug.ID, IsPrimary: true, BundleQuantity: 1})

	res, err := svc.EvaluateOffer(context.Background(), OfferInput{
		OfferID:    offer.ID,
		ProductIDs: []uuid.UUID{mug.ID},
		Quantities: []int{3},
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "15.00", res.DiscountAmount.StringFixed(2))
	assert.Equal(t, "15.00", res.FinalPrice.StringFixed(2))
}

func TestBundleOfferRequiresEveryMember(t *testing.T) {
	svc, conn := newTestService(t)
	a := seedProduct(t, conn, "20.00")
	b := seedProduct(t, conn, "15.00")
	offer := seedOffer(t, conn, models.Offer{Name: "desk bundle", OfferType: enums.OfferTypeBundle},
		models.ProductOffer{ProductID: a.ID, IsPrimary: true, BundleQuantity: 2, BundleDiscountPercent: dec("10")},
		models.ProductOffer{ProductID: b.ID, BundleQuantity: 1},
	)

	res, err := svc.EvaluateOffer(context.Background(), OfferInput{
		OfferID:    offer.ID,
		ProductIDs: []uuid.UUID{a.ID, b.ID},
		Quantities: []int{2, 1},
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "5.50", res.DiscountAmount.StringFixed(2))
	assert.Equal(t, "49.50", res.FinalPrice.StringFixed(2))
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, res.QualifyingProducts)

	res, err = svc.EvaluateOffer(context.Background(), OfferInput{
		OfferID:    offer.ID,
		ProductIDs: []uuid.UUID{a.ID},
		Quantities: []int{2},
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []uuid.UUID{b.ID}, res.MissingProducts)
	assert.True(t, res.DiscountAmount.IsZero())
}

func TestBundleOfferWithoutPrimaryIsInvalid(t *testing.T) {
	lines := []CartLine{{ProductID: uuid.New(), Quantity: 1, UnitPrice: dec("10")}}
	offer := &models.Offer{
		OfferType:  enums.OfferTypeBundle,
		IsActive:   true,
		ValidFrom:  fixedNow.Add(-time.Hour),
		ValidUntil: fixedNow.Add(time.Hour),
		Products:   []models.ProductOffer{{ProductID: lines[0].ProductID, BundleQuantity: 1}},
	}
	res := EvaluateOfferLines(offer, lines, fixedNow)
	assert.False(t, res.Valid)
	assert.Equal(t, msgNoPrimaryProduct, res.Message)
}

func TestDirectOfferDiscountsQualifyingLinesOnly(t *testing.T) {
	member := uuid.New()
	other := uuid.New()
	offer := &models.Offer{
		OfferType:          enums.OfferTypeDiscount,
		GetDiscountPercent: dec("25"),
		IsActive:           true,
		ValidFrom:          fixedNow.Add(-time.Hour),
		ValidUntil:         fixedNow.Add(time.Hour),
		Products:           []models.ProductOffer{{ProductID: member}},
	}
	res := EvaluateOfferLines(offer, []CartLine{
		{ProductID: member, Quantity: 2, UnitPrice: dec("30")},
		{ProductID: other, Quantity: 1, UnitPrice: dec("40")},
	}, fixedNow)
	assert.True(t, res.Valid)
	assert.Equal(t, "15.00", res.DiscountAmount.StringFixed(2))
	assert.Equal(t, "85.00", res.FinalPrice.StringFixed(2))
	assert.Equal(t, []uuid.UUID{member}, res.QualifyingProducts)
}

func TestEvaluateOfferIsReadOnly(t *testing.T) {
	svc, conn := newTestService(t)
	p := seedProduct(t, conn, "10.00")
	offer := seedOffer(t, conn, models.Offer{Name: "fresh", OfferType: enums.OfferTypeDiscount, GetDiscountPercent: dec("10")})

	res, err := svc.EvaluateOffer(context.Background(), OfferInput{OfferID: offer.ID, ProductIDs: []uuid.UUID{p.ID}, Quantities: []int{1}})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, msgOfferUnconfigured, res.Message)

	var count int64
	require.NoError(t, conn.Model(&models.ProductOffer{}).Where("offer_id = ?", offer.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEvaluateOfferRejectsBadInput(t *testing.T) {
	svc, conn := newTestService(t)
	p := seedProduct(t, conn, "10.00")

	_, err := svc.EvaluateOffer(context.Background(), OfferInput{OfferID: uuid.New(), ProductIDs: []uuid.UUID{p.ID}, Quantities: []int{1, 2}})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.EvaluateOffer(context.Background(), OfferInput{OfferID: uuid.New(), ProductIDs: []uuid.UUID{p.ID}, Quantities: []int{1}})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestEvaluateOfferExpired(t *testing.T) {
	svc, conn := newTestService(t)
	p := seedProduct(t, conn, "10.00")
	offer := seedOffer(t, conn, models.Offer{
		Name:       "old",
		OfferType:  enums.OfferTypeDiscount,
		ValidFrom:  fixedNow.Add(-48 * time.Hour),
		ValidUntil: fixedNow.Add(-24 * time.Hour),
	}, models.ProductOffer{ProductID: p.ID})

	res, err := svc.EvaluateOffer(context.Background(), OfferInput{OfferID: offer.ID, ProductIDs: []uuid.UUID{p.ID}, Quantities: []int{1}})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "this discount has expired", res.Message)
}

func TestConfigureOfferProducts(t *testing.T) {
	svc, conn := newTestService(t)
	a := seedProduct(t, conn, "20.00")
	b := seedProduct(t, conn, "15.00")
	offer := seedOffer(t, conn, models.Offer{Name: "bundle", OfferType: enums.OfferTypeBundle},
		models.ProductOffer{ProductID: b.ID, IsPrimary: true})
	ctx := context.Background()

	_, err := svc.ConfigureOfferProducts(ctx, offer.ID, []ProductOfferInput{{ProductID: a.ID}, {ProductID: a.ID, IsPrimary: true}})
	assert.Equal(t, pkgerrors.CodeIntegrity, pkgerrors.As(err).Code())

	_, err = svc.ConfigureOfferProducts(ctx, offer.ID, []ProductOfferInput{{ProductID: a.ID}, {ProductID: b.ID}})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	rows, err := svc.ConfigureOfferProducts(ctx, offer.ID, []ProductOfferInput{
		{ProductID: a.ID, IsPrimary: true, BundleQuantity: 2, BundleDiscountPercent: dec("10")},
		{ProductID: b.ID},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	var stored []models.ProductOffer
	require.NoError(t, conn.Where("offer_id = ?", offer.ID).Order("is_primary DESC").Find(&stored).Error)
	require.Len(t, stored, 2)
	assert.Equal(t, a.ID, stored[0].ProductID)
	assert.Equal(t, 2, stored[0].BundleQuantity)
	assert.Equal(t, 1, stored[1].BundleQuantity)

	_, err = svc.ConfigureOfferProducts(ctx, uuid.New(), []ProductOfferInput{{ProductID: a.ID, IsPrimary: true}})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
