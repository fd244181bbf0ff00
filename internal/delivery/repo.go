package delivery

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/estore-backend/pkg/db/models"
)

// Repository defines persistence for delivery packages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	PackagedQuantities(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]int, error)
	CreatePackage(ctx context.Context, pkg *models.DeliveryPackage) error
	CreateItems(ctx context.Context, items []models.PackageItem) error
	FindPackage(ctx context.Context, packageID uuid.UUID) (*models.DeliveryPackage, error)
	FindPackageForUpdate(ctx context.Context, packageID uuid.UUID) (*models.DeliveryPackage, error)
	PackageAggregates(ctx context.Context, packageID uuid.UUID) (*PackageAggregates, error)
	UpdatePackage(ctx context.Context, packageID uuid.UUID, updates map[string]any) error
}

// PackageAggregates is the recomputed view of a package's items.
type PackageAggregates struct {
	Listings int `gorm:"column:listings"`
	Units    int `gorm:"column:units"`
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

func (r *repository) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// PackagedQuantities returns units already packaged per order item. Items never
// packaged are absent from the map.
func (r *repository) PackagedQuantities(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		OrderItemID uuid.UUID `gorm:"column:order_item_id"`
		Units       int       `gorm:"column:units"`
	}
	err := r.db.WithContext(ctx).
		Model(&models.PackageItem{}).
		Select("order_item_id, SUM(quantity) AS units").
		Where("order_item_id IN ?", itemIDs).
		Group("order_item_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.OrderItemID] = row.Units
	}
	return out, nil
}

func (r *repository) CreatePackage(ctx context.Context, pkg *models.DeliveryPackage) error {
	return r.db.WithContext(ctx).Omit("Items").Create(pkg).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.PackageItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindPackage(ctx context.Context, packageID uuid.UUID) (*models.DeliveryPackage, error) {
	var pkg models.DeliveryPackage
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", packageID).
		First(&pkg).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *repository) FindPackageForUpdate(ctx context.Context, packageID uuid.UUID) (*models.DeliveryPackage, error) {
	var pkg models.DeliveryPackage
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", packageID).
		First(&pkg).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *repository) PackageAggregates(ctx context.Context, packageID uuid.UUID) (*PackageAggregates, error) {
	var agg PackageAggregates
	err := r.db.WithContext(ctx).
		Model(&models.PackageItem{}).
		Select("COUNT(*) AS listings, COALESCE(SUM(quantity), 0) AS units").
		Where("package_id = ?", packageID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *repository) UpdatePackage(ctx context.Context, packageID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryPackage{}).
		Where("id = ?", packageID).
		Updates(updates).Error
}
