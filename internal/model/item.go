package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ItemType string

const (
	ItemRaw   ItemType = "Raw"
	ItemFinal ItemType = "Final"
)

// Item is a stocked catalog entry. OnHand is a cache of the signed ledger sum and
// is only written by the transaction engine; Version guards those writes.
// Deleting an item is a soft delete: the row stays resolvable (Unscoped) with its
// last on-hand value frozen.
type Item struct {
	BaseModel
	Name             string          `gorm:"type:varchar(255);not null;index" json:"name" validate:"required"`
	Type             ItemType        `gorm:"type:varchar(10);not null;default:'Raw'" json:"type"`
	SpecificationID  *uuid.UUID      `gorm:"type:uuid;index" json:"specification_id,omitempty"`
	Specification    *Specification  `gorm:"foreignKey:SpecificationID" json:"specification,omitempty"`
	SupplierID       *uuid.UUID      `gorm:"type:uuid;index" json:"supplier_id,omitempty"`
	Supplier         *Supplier       `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	ReorderThreshold decimal.Decimal `gorm:"type:numeric(18,3);not null;default:0" json:"reorder_threshold"`
	OnHand           decimal.Decimal `gorm:"type:numeric(18,3);not null;default:0" json:"on_hand"`
	Rate             decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"rate"`
	LeadTimeDays     int             `gorm:"default:0" json:"lead_time_days"`
	Rack             string          `gorm:"type:varchar(50)" json:"rack,omitempty"`
	Bin              string          `gorm:"type:varchar(50)" json:"bin,omitempty"`
	Version          int64           `gorm:"not null;default:0" json:"-"`
}

// Active reports whether the item can still be referenced by new line entries.
func (i *Item) Active() bool {
	return !i.DeletedAt.Valid
}

// BelowThreshold reports whether stock is at or below the reorder threshold.
func (i *Item) BelowThreshold() bool {
	return i.OnHand.LessThanOrEqual(i.ReorderThreshold)
}

// ValidItemType accepts Raw or Final.
func ValidItemType(t ItemType) bool {
	return t == ItemRaw || t == ItemFinal
}
