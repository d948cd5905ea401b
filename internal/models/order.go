package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	OrderProcessing = "processing"
	OrderAccepted   = "accepted"
	OrderFulfilled  = "fulfilled"
	OrderCancelled  = "cancelled"
)

type Order struct {
	BaseModel
	OrderNumber  string          `gorm:"uniqueIndex;not null" json:"order_number"`
	CustomerID   uuid.UUID       `gorm:"type:uuid;index;not null" json:"customer_id"`
	Customer     *Customer       `json:"customer,omitempty"`
	Status       string          `gorm:"index;not null" json:"status"`
	ItemsTotal   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"items_total"`
	DeliveryFee  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"delivery_fee"`
	PayPoints    int             `gorm:"not null;default:0" json:"pay_points"`
	Sum          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"sum"`
	PointsEarned int             `gorm:"not null;default:0" json:"points_earned"`
	Address      string          `json:"address"`
	Phone        string          `json:"phone"`
	Notes        string          `json:"notes"`
	PlacedAt     time.Time       `gorm:"index" json:"placed_at"`
	AcceptedAt   *time.Time      `json:"accepted_at"`
	FulfilledAt  *time.Time      `json:"fulfilled_at"`
	CancelledAt  *time.Time      `json:"cancelled_at"`
	CancelReason string          `json:"cancel_reason"`
	Items        []OrderItem     `json:"items,omitempty"`
}

type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID       `gorm:"type:uuid;index;not null" json:"order_id"`
	ProductID *uuid.UUID      `gorm:"type:uuid;index" json:"product_id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	LineTotal decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"line_total"`
}
