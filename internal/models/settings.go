package models

import "github.com/shopspring/decimal"

// StoreSettings stores shop-wide values managed via the admin panel.
// There should be only one row (singleton pattern).
type StoreSettings struct {
	BaseModel
	DeliveryFee      decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"delivery_fee"`
	FreeDeliveryFrom decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"free_delivery_from"`
	MinOrderAmount   decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"min_order_amount"`
	PointsPercent    int             `gorm:"default:0" json:"points_percent"`
	PointsEnabled    bool            `json:"points_enabled"`
	OrdersEnabled    bool            `json:"orders_enabled"`
	SupportPhone     string          `json:"support_phone"`
	SupportEmail     string          `json:"support_email"`
	WorkingHours     string          `json:"working_hours"`
}

// DefaultStoreSettings is returned until an admin saves settings.
func DefaultStoreSettings() StoreSettings {
	return StoreSettings{
		DeliveryFee:      decimal.Zero,
		FreeDeliveryFrom: decimal.Zero,
		MinOrderAmount:   decimal.Zero,
		PointsPercent:    0,
		PointsEnabled:    false,
		OrdersEnabled:    true,
		WorkingHours:     "09:00 - 21:00",
	}
}
