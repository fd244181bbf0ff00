package discounts

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/estore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), dbtest.TxRunner{DB: conn}, logger.New(logger.Options{Output: io.Discard}))
	require.NoError(t, err)
	impl := svc.(*service)
	impl.now = func() time.Time { return fixedNow }
	return impl, conn
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func seedProduct(t *testing.T, conn *gorm.DB, price string) models.Product {
	t.Helper()
	p := models.Product{
		ID:       uuid.New(),
		StoreID:  uuid.New(),
		Name:     "product",
		Price:    dec(price),
		MRP:      dec(price),
		IsActive: true,
	}
	require.NoError(t, conn.Create(&p).Error)
	return p
}

func baseCoupon(code string) models.Coupon {
	return models.Coupon{
		ID:            uuid.New(),
		Code:          code,
		DiscountType:  enums.DiscountTypePercentage,
		CouponType:    enums.CouponTypeCart,
		DiscountValue: dec("10"),
		MinCartValue:  decimal.Zero,
		ValidFrom:     fixedNow.Add(-24 * time.Hour),
		ValidUntil:    fixedNow.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func seedCoupon(t *testing.T, conn *gorm.DB, c models.Coupon) models.Coupon {
	t.Helper()
	require.NoError(t, conn.Create(&c).Error)
	if !c.IsActive {
		require.NoError(t, conn.Model(&models.Coupon{}).Where("id = ?", c.ID).Update("is_active", false).Error)
	}
	return c
}

func seedOffer(t *testing.T, conn *gorm.DB, offer models.Offer, members ...models.ProductOffer) models.Offer {
	t.Helper()
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	if offer.ValidFrom.IsZero() {
		offer.ValidFrom = fixedNow.Add(-time.Hour)
		offer.ValidUntil = fixedNow.Add(time.Hour)
	}
	if offer.OfferScope == "" {
		offer.OfferScope = enums.OfferScopeCart
	}
	offer.IsActive = true
	require.NoError(t, conn.Create(&offer).Error)
	for i := range members {
		members[i].ID = uuid.New()
		members[i].OfferID = offer.ID
		require.NoError(t, conn.Create(&members[i]).Error)
	}
	return offer
}

func intPtr(v int) *int {
	return &v
}
