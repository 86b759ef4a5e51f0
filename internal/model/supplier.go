package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Supplier struct {
	BaseModel
	Name             string              `gorm:"type:varchar(255);not null;index" json:"name" validate:"required"`
	GSTNo            *string             `gorm:"type:varchar(30);uniqueIndex" json:"gst_no,omitempty"`
	Contact          string              `gorm:"type:varchar(255)" json:"contact,omitempty"`
	LeadTimeDays     int                 `gorm:"default:0" json:"lead_time_days"`
	LastPurchaseDate *time.Time          `json:"last_purchase_date,omitempty"`
	LastPurchaseRate decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"last_purchase_rate"`
}

// Specification is the spec list entry an item may point at.
type Specification struct {
	BaseModel
	Name        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"name" validate:"required"`
	Description string `gorm:"type:text" json:"description,omitempty"`
}
