package models

import "time"

type Banner struct {
	BaseModel
	Title     string `json:"title"`
	Image     string `json:"image"`
	Link      string `json:"link"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`
	IsActive  bool   `json:"is_active"`
}

// MarketingMessage is a storefront announcement with an optional display window.
type MarketingMessage struct {
	BaseModel
	Title    string     `gorm:"not null" json:"title"`
	Body     string     `json:"body"`
	IsActive bool       `json:"is_active"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

// VisibleAt reports whether the message should be shown at t.
func (m MarketingMessage) VisibleAt(t time.Time) bool {
	if !m.IsActive {
		return false
	}
	if m.StartsAt != nil && t.Before(*m.StartsAt) {
		return false
	}
	if m.EndsAt != nil && t.After(*m.EndsAt) {
		return false
	}
	return true
}
