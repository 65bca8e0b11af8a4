// Package dbtest opens throwaway sqlite databases migrated with the full
// model set, plus small seeding helpers shared by package tests.
package dbtest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketcore/pkg/db"
	"github.com/angelmondragon/marketcore/pkg/db/models"
)

// Open returns an isolated in-memory database. A single connection is used
// so concurrent transactions serialize the way row locks would on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "_" + uuid.NewString()
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return conn
}

// Client wraps Open in a db.Client for services that need WithTx.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromGorm(conn), conn
}

// Must fails the test on a non-nil error.
func Must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func SeedUser(t testing.TB, conn *gorm.DB, email string, admin bool) models.User {
	t.Helper()
	user := models.User{Email: email, IsAdmin: admin}
	Must(t, conn.Create(&user).Error)
	return user
}

// SeedVendor creates a vendor owned by ownerID. An empty rate leaves the
// commission to the configured default.
func SeedVendor(t testing.TB, conn *gorm.DB, ownerID int64, rate string) models.Vendor {
	t.Helper()
	vendor := models.Vendor{OwnerUserID: ownerID, Name: "vendor"}
	if rate != "" {
		r := decimal.RequireFromString(rate)
		vendor.CommissionRate = &r
	}
	Must(t, conn.Create(&vendor).Error)
	return vendor
}

// SeedProduct creates a purchasable physical product with a tracked stock
// record holding qty units.
func SeedProduct(t testing.TB, conn *gorm.DB, vendorID int64, price string, qty int) models.Product {
	t.Helper()
	product := models.Product{
		VendorID:         vendorID,
		Name:             "product",
		Price:            decimal.RequireFromString(price),
		RequiresShipping: true,
		Purchasable:      true,
	}
	Must(t, conn.Create(&product).Error)
	SeedStock(t, conn, product.ID, nil, true, qty)
	return product
}

func SeedStock(t testing.TB, conn *gorm.DB, productID int64, variantID *int64, managed bool, qty int) models.StockRecord {
	t.Helper()
	record := models.StockRecord{
		SKU:               models.SKU(productID, variantID),
		ProductID:         productID,
		VariantID:         variantID,
		ManageStock:       managed,
		AvailableQuantity: qty,
		Version:           1,
	}
	Must(t, conn.Create(&record).Error)
	return record
}

// Stock reads the current record for sku.
func Stock(t testing.TB, conn *gorm.DB, sku string) models.StockRecord {
	t.Helper()
	var record models.StockRecord
	Must(t, conn.Where("sku = ?", sku).First(&record).Error)
	return record
}
