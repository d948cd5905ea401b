package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a shopper authenticated by phone OTP.
type Customer struct {
	BaseModel
	Name        string     `json:"name"`
	Phone       string     `gorm:"uniqueIndex;not null" json:"phone"`
	Address     string     `json:"address"`
	Points      int        `gorm:"not null;default:0" json:"points"`
	PushToken   string     `json:"-"`
	IsBlocked   bool       `gorm:"default:false" json:"is_blocked"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

// OTPCode keeps track of one-time codes sent to phones.
type OTPCode struct {
	BaseModel
	Phone     string     `gorm:"index;not null" json:"phone"`
	Code      string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	Attempts  int        `gorm:"default:0" json:"attempts"`
	UsedAt    *time.Time `json:"used_at"`
}

// Points ledger entry types.
const (
	PointsEarn        = "earn"
	PointsSpend       = "spend"
	PointsReverseEarn = "reverse_earn"
	PointsRefund      = "refund"
)

// PointsTransaction is one signed movement of a customer's loyalty balance.
type PointsTransaction struct {
	BaseModel
	CustomerID uuid.UUID  `gorm:"type:uuid;index;not null" json:"customer_id"`
	OrderID    *uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	Type       string     `gorm:"not null" json:"type"`
	Points     int        `json:"points"`
	Balance    int        `json:"balance"`
	OccurredAt time.Time  `json:"occurred_at"`
}
