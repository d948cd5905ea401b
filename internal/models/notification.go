package models

import "time"

// Push notification statuses.
const (
	PushPending = "pending"
	PushSent    = "sent"
	PushFailed  = "failed"
)

// PushNotification records a broadcast sent to customers' devices.
type PushNotification struct {
	BaseModel
	Title      string     `gorm:"not null" json:"title"`
	Body       string     `json:"body"`
	Data       string     `json:"data"`
	Status     string     `gorm:"index" json:"status"`
	Recipients int        `json:"recipients"`
	Delivered  int        `json:"delivered"`
	Failed     int        `json:"failed"`
	SentAt     *time.Time `json:"sent_at"`
}
