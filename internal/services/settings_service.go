package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/cache"
	"github.com/example/freshcart/internal/models"
)

const (
	settingsCacheKey = "settings"
	settingsCacheTTL = 10 * time.Minute
)

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// SettingsService reads and writes the StoreSettings singleton.
type SettingsService struct {
	db    *gorm.DB
	cache *cache.Store
	log   *zap.Logger
}

// NewSettingsService constructs SettingsService.
func NewSettingsService(db *gorm.DB, store *cache.Store, log *zap.Logger) *SettingsService {
	return &SettingsService{db: db, cache: store, log: log}
}

// Get returns the saved settings, or defaults when none were saved yet.
func (s *SettingsService) Get(ctx context.Context) (models.StoreSettings, error) {
	var settings models.StoreSettings
	if s.cache.Get(ctx, settingsCacheKey, &settings) {
		return settings, nil
	}

	err := s.db.WithContext(ctx).Order("created_at asc").First(&settings).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.DefaultStoreSettings(), nil
	case err != nil:
		return models.StoreSettings{}, errors.Wrap(err, "load settings")
	}

	if err := s.cache.Set(ctx, settingsCacheKey, settings, settingsCacheTTL); err != nil {
		s.log.Warn("cache settings", zap.Error(err))
	}
	return settings, nil
}

// SettingsInput is the editable part of StoreSettings.
type SettingsInput struct {
	DeliveryFee      decimal.Decimal `json:"delivery_fee"`
	FreeDeliveryFrom decimal.Decimal `json:"free_delivery_from"`
	MinOrderAmount   decimal.Decimal `json:"min_order_amount"`
	PointsPercent    int             `json:"points_percent" validate:"min=0,max=100"`
	PointsEnabled    bool            `json:"points_enabled"`
	OrdersEnabled    bool            `json:"orders_enabled"`
	SupportPhone     string          `json:"support_phone" validate:"max=32"`
	SupportEmail     string          `json:"support_email" validate:"omitempty,email"`
	WorkingHours     string          `json:"working_hours" validate:"max=120"`
}

func (in SettingsInput) validate() error {
	money := map[string]decimal.Decimal{
		"delivery_fee":       in.DeliveryFee,
		"free_delivery_from": in.FreeDeliveryFrom,
		"min_order_amount":   in.MinOrderAmount,
	}
	for field, v := range money {
		if v.IsNegative() {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
	}
	if in.PointsPercent < 0 || in.PointsPercent > 100 {
		return &ValidationError{Field: "points_percent", Message: "must be between 0 and 100"}
	}
	return nil
}

// Update creates or overwrites the settings row and drops the cached copy.
func (s *SettingsService) Update(ctx context.Context, in SettingsInput) (models.StoreSettings, error) {
	if err := in.validate(); err != nil {
		return models.StoreSettings{}, err
	}

	var settings models.StoreSettings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Order("created_at asc").First(&settings).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		settings.DeliveryFee = in.DeliveryFee
		settings.FreeDeliveryFrom = in.FreeDeliveryFrom
		settings.MinOrderAmount = in.MinOrderAmount
		settings.PointsPercent = in.PointsPercent
		settings.PointsEnabled = in.PointsEnabled
		settings.OrdersEnabled = in.OrdersEnabled
		settings.SupportPhone = in.SupportPhone
		settings.SupportEmail = in.SupportEmail
		settings.WorkingHours = in.WorkingHours

		return tx.Save(&settings).Error
	})
	if err != nil {
		return models.StoreSettings{}, errors.Wrap(err, "save settings")
	}

	if err := s.cache.Del(ctx, settingsCacheKey); err != nil {
		s.log.Warn("invalidate settings cache", zap.Error(err))
	}
	return settings, nil
}
