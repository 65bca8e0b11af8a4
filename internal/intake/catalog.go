package intake

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore/pkg/db/models"
)

// Catalog is the read-only view of products, accounts and addresses that
// validation needs.
type Catalog interface {
	ProductsByID(ctx context.Context, ids []int64) (map[int64]models.Product, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	AddressForUser(ctx context.Context, addressID, userID int64) (*models.Address, error)
	CommissionRates(ctx context.Context, vendorIDs []int64) (map[int64]*decimal.Decimal, error)
}

type catalog struct {
	db *gorm.DB
}

// NewCatalog builds a Catalog backed by db.
func NewCatalog(db *gorm.DB) Catalog {
	return &catalog{db: db}
}

func (c *catalog) ProductsByID(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	out := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	if err := c.db.WithContext(ctx).
		Preload("Variants").
		Where("id IN ?", ids).
		Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (c *catalog) UserExists(ctx context.Context, userID int64) (bool, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddressForUser returns nil when the address does not exist or belongs to
// someone else.
func (c *catalog) AddressForUser(ctx context.Context, addressID, userID int64) (*models.Address, error) {
	var address models.Address
	err := c.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", addressID, userID).
		First(&address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &address, nil
}

func (c *catalog) CommissionRates(ctx context.Context, vendorIDs []int64) (map[int64]*decimal.Decimal, error) {
	out := make(map[int64]*decimal.Decimal, len(vendorIDs))
	if len(vendorIDs) == 0 {
		return out, nil
	}
	var vendors []models.Vendor
	if err := c.db.WithContext(ctx).
		Select("id", "commission_rate").
		Where("id IN ?", vendorIDs).
		Find(&vendors).Error; err != nil {
		return nil, err
	}
	for _, v := range vendors {
		out[v.ID] = v.CommissionRate
	}
	return out, nil
}
