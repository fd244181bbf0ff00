package discounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/estore-backend/pkg/db/models"
)

// Repository defines persistence for coupons, offers and their usage rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindCouponForUpdate(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	FindUsage(ctx context.Context, couponID, userID uuid.UUID) (*models.CouponUsage, error)
	IncrementCouponUsage(ctx context.Context, couponID uuid.UUID) (bool, error)
	RecordUserUsage(ctx context.Context, couponID, userID uuid.UUID, at time.Time) error
	FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	FindOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	ReplaceOfferProducts(ctx context.Context, offerID uuid.UUID, rows []models.ProductOffer) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

// FindCouponForUpdate locks the coupon row for the rest of the transaction.
func (r *repository) FindCouponForUpdate(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// FindUsage returns nil without error when the user never redeemed the coupon.
func (r *repository) FindUsage(ctx context.Context, couponID, userID uuid.UUID) (*models.CouponUsage, error) {
	var usage models.CouponUsage
	err := r.db.WithContext(ctx).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// IncrementCouponUsage bumps used_count unless the global limit is already reached.
// It reports false when the guard rejected the update.
func (r *repository) IncrementCouponUsage(ctx context.Context, couponID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", couponID).
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RecordUserUsage(ctx context.Context, couponID, userID uuid.UUID, at time.Time) error {
	existing, err := r.FindUsage(ctx, couponID, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.WithContext(ctx).Create(&models.CouponUsage{
			ID:         uuid.New(),
			CouponID:   couponID,
			UserID:     userID,
			UsedCount:  1,
			LastUsedAt: at,
		}).Error
	}
	return r.db.WithContext(ctx).
		Model(&models.CouponUsage{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"used_count":   gorm.Expr("used_count + 1"),
			"last_used_at": at,
		}).Error
}

func (r *repository) FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) FindOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	err := r.db.WithContext(ctx).
		Preload("Products", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_primary DESC, created_at ASC")
		}).
		Where("id = ?", id).
		First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// ReplaceOfferProducts swaps the whole product set of an offer.
func (r *repository) ReplaceOfferProducts(ctx context.Context, offerID uuid.UUID, rows []models.ProductOffer) error {
	if err := r.db.WithContext(ctx).Where("offer_id = ?", offerID).Delete(&models.ProductOffer{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}
