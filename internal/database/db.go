package database

import (
	"fmt"
	"time"

	"affiliate-tracking-system/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	maxIdleConns    = 10
	maxOpenConns    = 50
	connMaxLifetime = time.Hour
)

// SetupDatabase connects to Postgres, migrates the schema and sizes the
// connection pool.
func SetupDatabase(databaseURL string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Tag{}, &models.Lead{}, &models.Purchase{}, &models.CommissionRate{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func rate(v float64) *float64 {
	return &v
}

// DefaultCommissionRates mirrors the Associates standard fee schedule for
// the categories the sites sell most.
var DefaultCommissionRates = []models.CommissionRate{
	{Category: "Grocery & Gourmet Food", Commission: rate(5)},
	{Category: "Health & Household", Commission: rate(1)},
	{Category: "Beauty & Personal Care", Commission: rate(3)},
	{Category: "Home & Kitchen", Commission: rate(3)},
	{Category: "Clothing, Shoes & Jewelry", Commission: rate(4)},
	{Category: "Electronics", Commission: rate(1)},
	{Category: "Toys & Games", Commission: rate(3)},
	{Category: "Amazon Devices", Commission: rate(4)},
}

// SeedDatabase fills an empty commission table with the default rates.
// A table that already has rows is left alone.
func SeedDatabase(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.CommissionRate{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count commission rates: %w", err)
	}
	if count > 0 {
		return nil
	}

	rates := make([]models.CommissionRate, len(DefaultCommissionRates))
	copy(rates, DefaultCommissionRates)
	return db.Create(&rates).Error
}
