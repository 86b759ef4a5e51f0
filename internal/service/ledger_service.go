package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go-stock-ledger/internal/lockset"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/session"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// Notifier receives events after a posting has committed. Implementations
// must not block.
type Notifier interface {
	Publish(event string, payload interface{})
}

type noopNotifier struct{}

func (noopNotifier) Publish(string, interface{}) {}

// LineInput is one requested line of a posting.
type LineInput struct {
	ItemID   uuid.UUID           `json:"item_id"`
	Quantity decimal.Decimal     `json:"quantity"`
	UnitCost decimal.NullDecimal `json:"unit_cost"`
}

type PostInwardRequest struct {
	Lines        []LineInput `json:"lines"`
	InvoiceRef   string      `json:"invoice_ref"`
	ReceivedDate *time.Time  `json:"received_date"`
	Note         string      `json:"note"`
}

type PostIssueRequest struct {
	Lines    []LineInput `json:"lines"`
	IssuedTo string      `json:"issued_to"`
	Note     string      `json:"note"`
}

// ReorderAlert is raised when a posting takes an item from above its reorder
// threshold to at or below it.
type ReorderAlert struct {
	ItemID           uuid.UUID       `json:"item_id"`
	ItemName         string          `json:"item_name"`
	OnHand           decimal.Decimal `json:"on_hand"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
	TransactionID    uuid.UUID       `json:"transaction_id"`
}

type PostResult struct {
	Transaction *model.Transaction `json:"transaction"`
	Alerts      []ReorderAlert     `json:"alerts"`
}

type StockFilter struct {
	IncludeInactive    bool
	BelowThresholdOnly bool
}

type StockLevel struct {
	ItemID           uuid.UUID       `json:"item_id"`
	Name             string          `json:"name"`
	Type             model.ItemType  `json:"type"`
	OnHand           decimal.Decimal `json:"on_hand"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
	BelowThreshold   bool            `json:"below_threshold"`
	Active           bool            `json:"active"`
	Rack             string          `json:"rack,omitempty"`
	Bin              string          `json:"bin,omitempty"`
}

// StockDiscrepancy reports an item whose cached on-hand differs from the sum
// of its ledger lines.
type StockDiscrepancy struct {
	ItemID   uuid.UUID       `json:"item_id"`
	ItemName string          `json:"item_name"`
	OnHand   decimal.Decimal `json:"on_hand"`
	Ledger   decimal.Decimal `json:"ledger"`
	Active   bool            `json:"active"`
}

type LedgerService interface {
	PostInward(token string, req PostInwardRequest) (*PostResult, error)
	PostIssue(token string, req PostIssueRequest) (*PostResult, error)
	ListStock(token string, filter StockFilter) ([]StockLevel, error)
	ListTransactions(token string, filter repository.TransactionFilter) ([]model.Transaction, error)
	GetTransaction(token string, id uuid.UUID) (*model.Transaction, error)
	ReconcileStock(token string) ([]StockDiscrepancy, error)
}

type LedgerOptions struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

type ledgerService struct {
	db           *gorm.DB
	gate         Gate
	itemRepo     repository.ItemRepository
	supplierRepo repository.SupplierRepository
	txRepo       repository.TransactionRepository
	locks        *lockset.Set
	notifier     Notifier
	audit        auditor
	opts         LedgerOptions
}

func NewLedgerService(
	db *gorm.DB,
	gate Gate,
	itemRepo repository.ItemRepository,
	supplierRepo repository.SupplierRepository,
	txRepo repository.TransactionRepository,
	auditRepo repository.AuditRepository,
	locks *lockset.Set,
	notifier Notifier,
	opts LedgerOptions,
) LedgerService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &ledgerService{
		db:           db,
		gate:         gate,
		itemRepo:     itemRepo,
		supplierRepo: supplierRepo,
		txRepo:       txRepo,
		locks:        locks,
		notifier:     notifier,
		audit:        auditor{repo: auditRepo},
		opts:         opts,
	}
}

// posting carries one validated request through the engine.
type posting struct {
	kind         model.TransactionKind
	lines        []LineInput
	totals       map[uuid.UUID]decimal.Decimal
	ids          []uuid.UUID
	invoiceRef   *string
	receivedDate *time.Time
	issuedTo     string
	note         string
}

func (s *ledgerService) PostInward(token string, req PostInwardRequest) (*PostResult, error) {
	sess, err := s.gate.Authorize(token, model.CapPostTransaction)
	if err != nil {
		return nil, err
	}

	p := &posting{
		kind:         model.TxInward,
		lines:        req.Lines,
		receivedDate: req.ReceivedDate,
		note:         strings.TrimSpace(req.Note),
	}
	if ref := strings.TrimSpace(req.InvoiceRef); ref != "" {
		p.invoiceRef = &ref
	}
	if p.receivedDate != nil {
		d := p.receivedDate.UTC()
		p.receivedDate = &d
	}
	return s.post(sess, p)
}

func (s *ledgerService) PostIssue(token string, req PostIssueRequest) (*PostResult, error) {
	sess, err := s.gate.Authorize(token, model.CapPostTransaction)
	if err != nil {
		return nil, err
	}

	p := &posting{
		kind:     model.TxIssue,
		lines:    req.Lines,
		issuedTo: strings.TrimSpace(req.IssuedTo),
		note:     strings.TrimSpace(req.Note),
	}
	return s.post(sess, p)
}

func (s *ledgerService) post(sess *session.Session, p *posting) (*PostResult, error) {
	action := model.ActionPostInward
	if p.kind == model.TxIssue {
		action = model.ActionPostIssue
	}

	if err := validateLines(p); err != nil {
		s.audit.record(sess.Username, action, "transactions", nil, err, "")
		return nil, err
	}

	unlock := s.locks.Lock(p.ids...)
	result, err := s.postWithRetry(sess, p)
	unlock()

	if err != nil {
		s.audit.record(sess.Username, action, "transactions", nil, err, "")
		return nil, err
	}

	t := result.Transaction
	s.audit.record(sess.Username, action, "transactions", idPtr(t.ID), nil, fmt.Sprintf("%d line(s)", len(t.Lines)))
	slog.Info("transaction posted", "id", t.ID, "kind", t.Kind, "lines", len(t.Lines), "user", sess.Username)

	s.notifier.Publish("transaction_posted", t)
	for _, alert := range result.Alerts {
		s.notifier.Publish("reorder_alert", alert)
	}
	return result, nil
}

// validateLines rejects malformed lines and fills in the per-item totals.
// Nothing here touches storage.
func validateLines(p *posting) error {
	if len(p.lines) == 0 {
		return &ValidationError{Kind: InvalidQuantity, Field: "lines", Message: "transaction must have at least one line"}
	}

	p.totals = make(map[uuid.UUID]decimal.Decimal, len(p.lines))
	ids := make([]uuid.UUID, 0, len(p.lines))
	for i, line := range p.lines {
		n := i + 1
		if line.ItemID == uuid.Nil {
			return &ValidationError{Kind: InvalidItem, Field: "item_id", Line: n, Message: "item is required"}
		}
		if !line.Quantity.IsPositive() {
			id := line.ItemID
			return &ValidationError{Kind: InvalidQuantity, Field: "quantity", Line: n, ItemID: &id,
				Message: fmt.Sprintf("quantity must be greater than zero, got %s", line.Quantity)}
		}
		if !model.FitsScale(line.Quantity, model.QuantityScale) {
			id := line.ItemID
			return &ValidationError{Kind: InvalidQuantity, Field: "quantity", Line: n, ItemID: &id,
				Message: fmt.Sprintf("quantity allows at most %d decimal places, got %s", model.QuantityScale, line.Quantity)}
		}
		if line.UnitCost.Valid {
			if p.kind == model.TxIssue {
				return &ValidationError{Kind: InvalidInput, Field: "unit_cost", Line: n, Message: "unit cost applies to inward lines only"}
			}
			if line.UnitCost.Decimal.IsNegative() {
				return &ValidationError{Kind: InvalidInput, Field: "unit_cost", Line: n, Message: "unit cost cannot be negative"}
			}
			if !model.FitsScale(line.UnitCost.Decimal, model.MoneyScale) {
				return &ValidationError{Kind: InvalidInput, Field: "unit_cost", Line: n,
					Message: fmt.Sprintf("unit cost allows at most %d decimal places", model.MoneyScale)}
			}
		}
		if _, seen := p.totals[line.ItemID]; !seen {
			ids = append(ids, line.ItemID)
		}
		p.totals[line.ItemID] = p.totals[line.ItemID].Add(line.Quantity)
	}
	p.ids = lockset.Sorted(ids)
	return nil
}

func (s *ledgerService) postWithRetry(sess *session.Session, p *posting) (*PostResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		result, err := s.apply(sess, p)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		slog.Warn("posting conflict, retrying", "attempt", attempt, "err", err)
		if s.opts.RetryBackoff > 0 && attempt < s.opts.MaxRetries {
			time.Sleep(time.Duration(attempt) * s.opts.RetryBackoff)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

// retryable reports a lost optimistic check or a Postgres serialization,
// deadlock or lock-timeout failure.
func retryable(err error) bool {
	if errors.Is(err, repository.ErrStaleVersion) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}

// apply is one attempt: all checks and writes run in a single database
// transaction, so either every line lands or none does.
func (s *ledgerService) apply(sess *session.Session, p *posting) (*PostResult, error) {
	var result *PostResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		items, err := s.itemRepo.LockForPosting(tx, p.ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*model.Item, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		for i, line := range p.lines {
			item, ok := byID[line.ItemID]
			id := line.ItemID
			if !ok {
				return &ValidationError{Kind: InvalidItem, Field: "item_id", Line: i + 1, ItemID: &id,
					Message: fmt.Sprintf("item %s does not exist", id)}
			}
			if !item.Active() {
				return &ValidationError{Kind: InvalidItem, Field: "item_id", Line: i + 1, ItemID: &id,
					Message: fmt.Sprintf("item %q is inactive", item.Name)}
			}
		}

		if p.kind == model.TxIssue {
			var shortfalls []Shortfall
			for _, id := range p.ids {
				item := byID[id]
				want := p.totals[id]
				if want.GreaterThan(item.OnHand) {
					shortfalls = append(shortfalls, Shortfall{
						ItemID:    id,
						ItemName:  item.Name,
						Requested: want,
						OnHand:    item.OnHand,
						Shortfall: want.Sub(item.OnHand),
					})
				}
			}
			if len(shortfalls) > 0 {
				return &InsufficientStockError{Shortfalls: shortfalls}
			}
		}

		actor := actorID(sess)
		before := make(map[uuid.UUID]decimal.Decimal, len(p.ids))
		for _, id := range p.ids {
			item := byID[id]
			before[id] = item.OnHand
			next := item.OnHand.Add(p.totals[id])
			if p.kind == model.TxIssue {
				next = item.OnHand.Sub(p.totals[id])
			}
			if err := s.itemRepo.ApplyStock(tx, item, next, actor); err != nil {
				return err
			}
		}

		t := &model.Transaction{
			Kind:             p.kind,
			PostedByUserID:   sess.UserID,
			PostedByUsername: sess.Username,
			InvoiceRef:       p.invoiceRef,
			ReceivedDate:     p.receivedDate,
			IssuedTo:         p.issuedTo,
			Note:             p.note,
			Lines:            make([]model.LineEntry, len(p.lines)),
		}
		for i, line := range p.lines {
			t.Lines[i] = model.LineEntry{
				Position: i + 1,
				ItemID:   line.ItemID,
				ItemName: byID[line.ItemID].Name,
				Quantity: line.Quantity,
				UnitCost: line.UnitCost,
			}
		}
		if err := s.txRepo.Create(tx, t); err != nil {
			return err
		}

		if p.kind == model.TxInward {
			if err := s.recordPurchases(tx, t, byID); err != nil {
				return err
			}
		}

		result = &PostResult{Transaction: t, Alerts: crossings(t, p.ids, byID, before)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recordPurchases stamps the last purchase date and rate on each supplier
// that delivered one of the inward lines.
func (s *ledgerService) recordPurchases(tx *gorm.DB, t *model.Transaction, byID map[uuid.UUID]*model.Item) error {
	at := t.CreatedAt
	if t.ReceivedDate != nil {
		at = *t.ReceivedDate
	}
	done := make(map[uuid.UUID]bool)
	for _, line := range t.Lines {
		item := byID[line.ItemID]
		if item.SupplierID == nil || done[*item.SupplierID] {
			continue
		}
		done[*item.SupplierID] = true
		if err := s.supplierRepo.RecordPurchase(tx, *item.SupplierID, at, line.UnitCost); err != nil {
			return err
		}
	}
	return nil
}

func crossings(t *model.Transaction, ids []uuid.UUID, byID map[uuid.UUID]*model.Item, before map[uuid.UUID]decimal.Decimal) []ReorderAlert {
	alerts := []ReorderAlert{}
	for _, id := range ids {
		item := byID[id]
		was := before[id]
		if was.GreaterThan(item.ReorderThreshold) && item.BelowThreshold() {
			alerts = append(alerts, ReorderAlert{
				ItemID:           id,
				ItemName:         item.Name,
				OnHand:           item.OnHand,
				ReorderThreshold: item.ReorderThreshold,
				TransactionID:    t.ID,
			})
		}
	}
	return alerts
}

func (s *ledgerService) ListStock(token string, filter StockFilter) ([]StockLevel, error) {
	if _, err := s.gate.Authorize(token, model.CapViewStock); err != nil {
		return nil, err
	}

	items, err := s.itemRepo.FindAll(filter.IncludeInactive)
	if err != nil {
		return nil, err
	}

	levels := make([]StockLevel, 0, len(items))
	for _, item := range items {
		below := item.BelowThreshold()
		if filter.BelowThresholdOnly && !below {
			continue
		}
		levels = append(levels, StockLevel{
			ItemID:           item.ID,
			Name:             item.Name,
			Type:             item.Type,
			OnHand:           item.OnHand,
			ReorderThreshold: item.ReorderThreshold,
			BelowThreshold:   below,
			Active:           item.Active(),
			Rack:             item.Rack,
			Bin:              item.Bin,
		})
	}
	return levels, nil
}

func (s *ledgerService) ListTransactions(token string, filter repository.TransactionFilter) ([]model.Transaction, error) {
	if _, err := s.gate.Authorize(token, model.CapViewTransactions); err != nil {
		return nil, err
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, invalidInput("kind", "unknown transaction kind %q", filter.Kind)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.txRepo.FindAll(filter)
}

func (s *ledgerService) GetTransaction(token string, id uuid.UUID) (*model.Transaction, error) {
	if _, err := s.gate.Authorize(token, model.CapViewTransactions); err != nil {
		return nil, err
	}
	t, err := s.txRepo.FindByID(id)
	if err != nil {
		return nil, notFound("transaction", err)
	}
	return t, nil
}

// ReconcileStock compares every item's cached on-hand with its ledger sum.
// An empty result means the books balance.
func (s *ledgerService) ReconcileStock(token string) ([]StockDiscrepancy, error) {
	if _, err := s.gate.Authorize(token, model.CapManageCatalog); err != nil {
		return nil, err
	}

	items, err := s.itemRepo.FindAll(true)
	if err != nil {
		return nil, err
	}
	balances, err := s.txRepo.LedgerBalances()
	if err != nil {
		return nil, err
	}

	out := []StockDiscrepancy{}
	for _, item := range items {
		sum := balances[item.ID]
		if !sum.Equal(item.OnHand) {
			out = append(out, StockDiscrepancy{
				ItemID:   item.ID,
				ItemName: item.Name,
				OnHand:   item.OnHand,
				Ledger:   sum,
				Active:   item.Active(),
			})
		}
	}
	if len(out) > 0 {
		slog.Warn("stock reconciliation found discrepancies", "count", len(out))
	}
	return out, nil
}
