package model

// VisitorUsage holds the single live daily-quota record for one visitor.
// UsageDate is a calendar day (YYYY-MM-DD) in the configured time zone; the
// count resets implicitly whenever the stored date differs from today.
type VisitorUsage struct {
	VisitorID string `gorm:"primaryKey;size:64" json:"visitor_id"`
	UsageDate string `gorm:"size:10;not null" json:"usage_date"`
	Count     int    `gorm:"not null;default:0" json:"count"`
}

func (VisitorUsage) TableName() string { return "visitor_usage" }
