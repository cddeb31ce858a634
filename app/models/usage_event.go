package models

import "time"

const (
	UsageTypeQuestion = "question"
	UsageTypeDocument = "document"
)

// UsageEvent records one quota-consuming action. The subscription counters
// are authoritative for enforcement; this table is an audit projection used
// by the admin dashboard.
type UsageEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_usage_events_user_created,priority:1" json:"user_id"`
	Type      string    `gorm:"type:varchar(20);not null;index" json:"type"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_usage_events_user_created,priority:2" json:"created_at"`
}

// ValidUsageType reports whether the given resource type is meterable.
func ValidUsageType(t string) bool {
	return t == UsageTypeQuestion || t == UsageTypeDocument
}
