package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category groups products on the storefront.
type Category struct {
	BaseModel
	Name      string    `gorm:"not null" json:"name"`
	Image     string    `json:"image"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
	IsActive  bool      `json:"is_active"`
	Products  []Product `json:"products,omitempty"`
}

// Product is a sellable catalog item.
type Product struct {
	BaseModel
	Name        string          `gorm:"not null;index" json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	OldPrice    decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"old_price"`
	Unit        string          `json:"unit"`
	Stock       int             `gorm:"not null;default:0" json:"stock"`
	Image       string          `json:"image"`
	CategoryID  *uuid.UUID      `gorm:"type:uuid;index" json:"category_id"`
	Category    *Category       `json:"category,omitempty"`
	IsActive    bool            `json:"is_active"`
	Waitlist    int             `gorm:"not null;default:0" json:"waitlist"`
	SortOrder   int             `gorm:"default:0" json:"sort_order"`
}

// InStock reports whether at least one unit can be ordered.
func (p Product) InStock() bool {
	return p.Stock > 0
}
