// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/database"
	"github.com/example/freshcart/internal/models"
)

// NewDB returns an isolated, migrated in-memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// CreateCustomer inserts a customer with the given points balance.
func CreateCustomer(t testing.TB, db *gorm.DB, phone string, points int) models.Customer {
	t.Helper()

	c := models.Customer{Name: "Test " + phone, Phone: phone, Points: points}
	require.NoError(t, db.Create(&c).Error)
	return c
}

// CreateProduct inserts an active product with the given price and stock.
func CreateProduct(t testing.TB, db *gorm.DB, name, price string, stock int) models.Product {
	t.Helper()

	p := models.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Unit:     "pcs",
		Stock:    stock,
		IsActive: true,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// SaveSettings stores the settings singleton.
func SaveSettings(t testing.TB, db *gorm.DB, s models.StoreSettings) models.StoreSettings {
	t.Helper()

	require.NoError(t, db.Create(&s).Error)
	return s
}

// Reload re-reads a customer from the database.
func Reload(t testing.TB, db *gorm.DB, c models.Customer) models.Customer {
	t.Helper()

	var fresh models.Customer
	require.NoError(t, db.First(&fresh, "id = ?", c.ID).Error)
	return fresh
}
