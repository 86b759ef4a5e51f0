package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionKind string

const (
	TxInward TransactionKind = "INWARD"
	TxIssue  TransactionKind = "ISSUE"
)

func (k TransactionKind) Valid() bool {
	return k == TxInward || k == TxIssue
}

// Decimal places stored for quantities and for money columns.
const (
	QuantityScale int32 = 3
	MoneyScale    int32 = 2
)

// FitsScale reports whether d can be stored with at most scale decimal places
// without rounding.
func FitsScale(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}

// OpeningInvoiceRef marks the inward transaction created together with an item.
const OpeningInvoiceRef = "OPENING"

// Transaction is an append-only ledger record. It deliberately has no UpdatedAt
// or DeletedAt: corrections are posted as new offsetting transactions.
type Transaction struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Kind             TransactionKind `gorm:"type:varchar(10);not null;index" json:"kind"`
	CreatedAt        time.Time       `gorm:"not null;index" json:"created_at"`
	PostedByUserID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"posted_by_user_id"`
	PostedByUsername string          `gorm:"type:varchar(100);not null" json:"posted_by_username"`
	InvoiceRef       *string         `gorm:"type:varchar(100);index" json:"invoice_ref,omitempty"` // Inward only
	ReceivedDate     *time.Time      `gorm:"type:date" json:"received_date,omitempty"`              // Inward only
	IssuedTo         string          `gorm:"type:varchar(255)" json:"issued_to,omitempty"`          // Issue only
	Note             string          `gorm:"type:text" json:"note,omitempty"`
	Lines            []LineEntry     `gorm:"foreignKey:TransactionID" json:"lines"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Sign is +1 for inward and -1 for issue.
func (t *Transaction) Sign() decimal.Decimal {
	if t.Kind == TxIssue {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// LineEntry is one item movement inside a transaction. ItemName is the name the
// item had when the line was posted and is what history displays.
type LineEntry struct {
	ID            uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	TransactionID uuid.UUID           `gorm:"type:uuid;not null;index" json:"transaction_id"`
	Position      int                 `gorm:"not null" json:"position"`
	ItemID        uuid.UUID           `gorm:"type:uuid;not null;index" json:"item_id"`
	ItemName      string              `gorm:"type:varchar(255);not null" json:"item_name"`
	Quantity      decimal.Decimal     `gorm:"type:numeric(18,3);not null" json:"quantity"`
	UnitCost      decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"unit_cost"` // Inward only
	CreatedAt     time.Time           `json:"created_at"`
}

func (l *LineEntry) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
