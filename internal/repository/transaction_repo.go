package repository

import (
	"time"

	"go-stock-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionRepository interface {
	Create(tx *gorm.DB, t *model.Transaction) error
	FindAll(filter TransactionFilter) ([]model.Transaction, error)
	FindByID(id uuid.UUID) (*model.Transaction, error)
	LedgerBalances() (map[uuid.UUID]decimal.Decimal, error)
	GetStockMovement(startDate, endDate time.Time) ([]StockMovementData, error)
	GetDashboardStats() (*DashboardStats, error)
}

// TransactionFilter narrows history queries. Zero values mean "any".
type TransactionFilter struct {
	Kind       model.TransactionKind
	ItemID     *uuid.UUID
	PostedBy   *uuid.UUID
	InvoiceRef string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// StockMovementData untuk chart data
type StockMovementData struct {
	Date     string          `json:"date"`
	Inbound  decimal.Decimal `json:"inbound"`
	Outbound decimal.Decimal `json:"outbound"`
}

// DashboardStats untuk overview stats
type DashboardStats struct {
	TotalItems     int64           `json:"total_items"`
	LowStockCount  int64           `json:"low_stock_count"`
	TotalValuation decimal.Decimal `json:"total_valuation"`
}

type transactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepo(db *gorm.DB) TransactionRepository {
	return &transactionRepo{db}
}

// Create inserts the transaction together with its lines.
func (r *transactionRepo) Create(tx *gorm.DB, t *model.Transaction) error {
	return tx.Create(t).Error
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *transactionRepo) FindAll(filter TransactionFilter) ([]model.Transaction, error) {
	q := r.db.Model(&model.Transaction{}).Preload("Lines", orderedLines)

	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.ItemID != nil {
		q = q.Where("id IN (?)", r.db.Model(&model.LineEntry{}).Select("transaction_id").Where("item_id = ?", *filter.ItemID))
	}
	if filter.PostedBy != nil {
		q = q.Where("posted_by_user_id = ?", *filter.PostedBy)
	}
	if filter.InvoiceRef != "" {
		q = q.Where("invoice_ref = ?", filter.InvoiceRef)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", filter.To.UTC())
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var transactions []model.Transaction
	err := q.Order("created_at DESC, id DESC").Find(&transactions).Error
	return transactions, err
}

func (r *transactionRepo) FindByID(id uuid.UUID) (*model.Transaction, error) {
	var transaction model.Transaction
	if err := r.db.Preload("Lines", orderedLines).First(&transaction, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &transaction, nil
}

// LedgerBalances returns the signed sum of all line quantities per item.
// Lines are summed as decimals here rather than with SQL SUM, which SQLite
// evaluates in floating point.
func (r *transactionRepo) LedgerBalances() (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.db.Table("line_entries AS l").
		Select("l.item_id, t.kind, l.quantity").
		Joins("JOIN transactions t ON t.id = l.transaction_id").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var id uuid.UUID
		var kind model.TransactionKind
		var quantity decimal.Decimal
		if err := rows.Scan(&id, &kind, &quantity); err != nil {
			return nil, err
		}
		if kind != model.TxInward {
			quantity = quantity.Neg()
		}
		balances[id] = balances[id].Add(quantity.Round(model.QuantityScale))
	}
	return balances, rows.Err()
}

func (r *transactionRepo) GetStockMovement(startDate, endDate time.Time) ([]StockMovementData, error) {
	var results []StockMovementData

	// Aggregate line quantities per day
	rows, err := r.db.Table("line_entries AS l").
		Select(`
			DATE(t.created_at) as date,
			COALESCE(SUM(CASE WHEN t.kind = ? THEN l.quantity ELSE 0 END), 0) as inbound,
			COALESCE(SUM(CASE WHEN t.kind = ? THEN l.quantity ELSE 0 END), 0) as outbound
		`, model.TxInward, model.TxIssue).
		Joins("JOIN transactions t ON t.id = l.transaction_id").
		Where("t.created_at BETWEEN ? AND ?", startDate.UTC(), endDate.UTC()).
		Group("DATE(t.created_at)").
		Order("date ASC").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var data StockMovementData
		if err := rows.Scan(&data.Date, &data.Inbound, &data.Outbound); err != nil {
			return nil, err
		}
		data.Inbound = data.Inbound.Round(model.QuantityScale)
		data.Outbound = data.Outbound.Round(model.QuantityScale)
		if len(data.Date) > 10 {
			data.Date = data.Date[:10]
		}
		results = append(results, data)
	}

	return results, rows.Err()
}

func (r *transactionRepo) GetDashboardStats() (*DashboardStats, error) {
	var stats DashboardStats

	if err := r.db.Model(&model.Item{}).Count(&stats.TotalItems).Error; err != nil {
		return nil, err
	}

	if err := r.db.Model(&model.Item{}).Where("on_hand <= reorder_threshold").Count(&stats.LowStockCount).Error; err != nil {
		return nil, err
	}

	// Total Valuation (SUM of on_hand * rate)
	if err := r.db.Model(&model.Item{}).Select("COALESCE(SUM(on_hand * rate), 0)").Row().Scan(&stats.TotalValuation); err != nil {
		return nil, err
	}

	return &stats, nil
}
