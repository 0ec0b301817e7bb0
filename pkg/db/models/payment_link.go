package models

import "time"

// PaymentLink mirrors the per-scope payment link and tracked order id.
type PaymentLink struct {
	Scope          string    `gorm:"column:scope;type:text;primaryKey"`
	URL            string    `gorm:"column:url;type:text;not null;default:''"`
	ExpiresAtMs    int64     `gorm:"column:expires_at_ms;not null;default:0"`
	CurrentOrderID string    `gorm:"column:current_order_id;type:text;not null;default:''"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

func (PaymentLink) TableName() string { return "payment_links" }
