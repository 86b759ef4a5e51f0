package service_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/service"
)

func TestPostingScenario(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	manager, _ := f.sessionFor(t, "manager", model.RoleManager)
	bolt := f.createItem(t, admin, "Bolt-M6", 100, 20)

	// Inward 50: 100 -> 150, no alert
	res, err := f.ledger.PostInward(manager, service.PostInwardRequest{
		Lines:      []service.LineInput{line(bolt.ID, 50)},
		InvoiceRef: "INV-001",
	})
	if err != nil {
		t.Fatalf("PostInward failed: %v", err)
	}
	if got := f.onHand(t, bolt.ID); !got.Equal(qty(150)) {
		t.Errorf("on hand after inward = %s, want 150", got)
	}
	if len(res.Alerts) != 0 {
		t.Errorf("expected no alerts, got %v", res.Alerts)
	}

	// Issue 140: 150 -> 10, crosses threshold 20
	res, err = f.ledger.PostIssue(manager, service.PostIssueRequest{
		Lines:    []service.LineInput{line(bolt.ID, 140)},
		IssuedTo: "Assembly",
	})
	if err != nil {
		t.Fatalf("PostIssue failed: %v", err)
	}
	if got := f.onHand(t, bolt.ID); !got.Equal(qty(10)) {
		t.Errorf("on hand after issue = %s, want 10", got)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].ItemID != bolt.ID {
		t.Fatalf("expected one alert for Bolt-M6, got %v", res.Alerts)
	}
	if !res.Alerts[0].OnHand.Equal(qty(10)) {
		t.Errorf("alert on hand = %s, want 10", res.Alerts[0].OnHand)
	}
	if n := f.notifier.count("reorder_alert"); n != 1 {
		t.Errorf("published %d reorder alerts, want 1", n)
	}

	// Issue 20 with 10 on hand: rejected, short by 10
	_, err = f.ledger.PostIssue(manager, service.PostIssueRequest{
		Lines: []service.LineInput{line(bolt.ID, 20)},
	})
	var ise *service.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !errors.Is(err, service.ErrInsufficientStock) {
		t.Error("error should match ErrInsufficientStock")
	}
	if len(ise.Shortfalls) != 1 || !ise.Shortfalls[0].Shortfall.Equal(qty(10)) {
		t.Errorf("unexpected shortfalls: %+v", ise.Shortfalls)
	}
	if got := f.onHand(t, bolt.ID); !got.Equal(qty(10)) {
		t.Errorf("on hand after rejected issue = %s, want 10", got)
	}

	history, err := f.ledger.ListTransactions(manager, repository.TransactionFilter{ItemID: &bolt.ID})
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 transactions (opening, inward, issue), got %d", len(history))
	}
	if history[0].Kind != model.TxIssue {
		t.Errorf("newest transaction kind = %s, want ISSUE", history[0].Kind)
	}
	if history[2].InvoiceRef == nil || *history[2].InvoiceRef != model.OpeningInvoiceRef {
		t.Errorf("oldest transaction should be the opening inward")
	}
}

func TestPostIssue_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	a := f.createItem(t, admin, "Washer", 5, 0)
	b := f.createItem(t, admin, "Nut", 100, 0)

	before, _ := f.ledger.ListTransactions(admin, repository.TransactionFilter{})

	_, err := f.ledger.PostIssue(admin, service.PostIssueRequest{
		Lines: []service.LineInput{line(b.ID, 10), line(a.ID, 10)},
	})
	var ise *service.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(ise.Shortfalls) != 1 || ise.Shortfalls[0].ItemID != a.ID {
		t.Errorf("expected only Washer to be short, got %+v", ise.Shortfalls)
	}

	if got := f.onHand(t, a.ID); !got.Equal(qty(5)) {
		t.Errorf("Washer on hand = %s, want 5", got)
	}
	if got := f.onHand(t, b.ID); !got.Equal(qty(100)) {
		t.Errorf("Nut on hand = %s, want 100", got)
	}
	after, _ := f.ledger.ListTransactions(admin, repository.TransactionFilter{})
	if len(after) != len(before) {
		t.Errorf("transaction count changed from %d to %d", len(before), len(after))
	}
}

func TestPostIssue_DuplicateLinesAreSummed(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	item := f.createItem(t, admin, "Gasket", 10, 0)

	_, err := f.ledger.PostIssue(admin, service.PostIssueRequest{
		Lines: []service.LineInput{line(item.ID, 6), line(item.ID, 6)},
	})
	var ise *service.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !ise.Shortfalls[0].Requested.Equal(qty(12)) {
		t.Errorf("requested = %s, want 12", ise.Shortfalls[0].Requested)
	}

	res, err := f.ledger.PostIssue(admin, service.PostIssueRequest{
		Lines: []service.LineInput{line(item.ID, 4), line(item.ID, 6)},
	})
	if err != nil {
		t.Fatalf("PostIssue failed: %v", err)
	}
	if len(res.Transaction.Lines) != 2 {
		t.Errorf("expected both lines kept, got %d", len(res.Transaction.Lines))
	}
	if got := f.onHand(t, item.ID); !got.IsZero() {
		t.Errorf("on hand = %s, want 0", got)
	}
}

func TestPost_Validation(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	item := f.createItem(t, admin, "Rivet", 10, 0)

	tests := []struct {
		name  string
		lines []service.LineInput
		kind  service.ValidationKind
	}{
		{"no lines", nil, service.InvalidQuantity},
		{"zero quantity", []service.LineInput{line(item.ID, 0)}, service.InvalidQuantity},
		{"negative quantity", []service.LineInput{line(item.ID, -3)}, service.InvalidQuantity},
		{"missing item", []service.LineInput{{Quantity: qty(1)}}, service.InvalidItem},
		{"unknown item", []service.LineInput{line(uuid.New(), 1)}, service.InvalidItem},
		{"too many decimal places", []service.LineInput{{
			ItemID:   item.ID,
			Quantity: decimal.RequireFromString("0.0001"),
		}}, service.InvalidQuantity},
		{"unit cost on issue", []service.LineInput{{
			ItemID:   item.ID,
			Quantity: qty(1),
			UnitCost: decimal.NewNullDecimal(decimal.NewFromInt(3)),
		}}, service.InvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.PostIssue(admin, service.PostIssueRequest{Lines: tt.lines})
			var ve *service.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", ve.Kind, tt.kind)
			}
			if !errors.Is(err, service.ErrValidation) {
				t.Error("error should match ErrValidation")
			}
		})
	}

	if got := f.onHand(t, item.ID); !got.Equal(qty(10)) {
		t.Errorf("on hand changed to %s", got)
	}
}

func TestPost_InactiveItemRejected(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	item := f.createItem(t, admin, "Old Part", 7, 0)

	if err := f.catalog.DeleteItem(admin, item.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}

	_, err := f.ledger.PostInward(admin, service.PostInwardRequest{Lines: []service.LineInput{line(item.ID, 1)}})
	var ve *service.ValidationError
	if !errors.As(err, &ve) || ve.Kind != service.InvalidItem {
		t.Fatalf("expected InvalidItem, got %v", err)
	}
	if got := f.onHand(t, item.ID); !got.Equal(qty(7)) {
		t.Errorf("frozen on hand = %s, want 7", got)
	}

	stock, err := f.ledger.ListStock(admin, service.StockFilter{})
	if err != nil {
		t.Fatalf("ListStock failed: %v", err)
	}
	if len(stock) != 0 {
		t.Errorf("deleted item should be hidden from stock, got %d rows", len(stock))
	}
	stock, _ = f.ledger.ListStock(admin, service.StockFilter{IncludeInactive: true})
	if len(stock) != 1 || stock[0].Active {
		t.Errorf("expected one inactive row, got %+v", stock)
	}
}

func TestHistoryKeepsNamesAfterRenameAndDelete(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	item := f.createItem(t, admin, "Hex Bolt", 0, 0)

	res, err := f.ledger.PostInward(admin, service.PostInwardRequest{Lines: []service.LineInput{line(item.ID, 5)}})
	if err != nil {
		t.Fatalf("PostInward failed: %v", err)
	}

	if _, err := f.catalog.UpdateItem(admin, item.ID, service.ItemInput{Name: "Hex Bolt M8"}); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	if err := f.catalog.DeleteItem(admin, item.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}

	got, err := f.ledger.GetTransaction(admin, res.Transaction.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got.Lines[0].ItemName != "Hex Bolt" {
		t.Errorf("line item name = %q, want the name at posting time", got.Lines[0].ItemName)
	}

	resolved, err := f.catalog.GetItem(admin, item.ID)
	if err != nil {
		t.Fatalf("deleted item should still resolve: %v", err)
	}
	if resolved.Active() {
		t.Error("resolved item should be inactive")
	}
}

func TestConcurrentIssuesNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	item := f.createItem(t, admin, "Spring", 50, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, short := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.PostIssue(admin, service.PostIssueRequest{Lines: []service.LineInput{line(item.ID, 5)}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, service.ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 10 || short != 10 {
		t.Errorf("succeeded=%d rejected=%d, want 10/10", ok, short)
	}
	if got := f.onHand(t, item.ID); !got.IsZero() {
		t.Errorf("on hand = %s, want 0", got)
	}

	diffs, err := f.ledger.ReconcileStock(admin)
	if err != nil {
		t.Fatalf("ReconcileStock failed: %v", err)
	}
	if len(diffs) != 0 {
		t.Errorf("ledger out of balance: %+v", diffs)
	}
}

func TestReconcileStock_DetectsDrift(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	item := f.createItem(t, admin, "Pin", 30, 0)

	if err := f.db.Model(&model.Item{}).Where("id = ?", item.ID).Update("on_hand", 31).Error; err != nil {
		t.Fatalf("tamper: %v", err)
	}

	diffs, err := f.ledger.ReconcileStock(admin)
	if err != nil {
		t.Fatalf("ReconcileStock failed: %v", err)
	}
	if len(diffs) != 1 || !diffs[0].Ledger.Equal(qty(30)) || !diffs[0].OnHand.Equal(qty(31)) {
		t.Errorf("unexpected discrepancies: %+v", diffs)
	}
}

func TestInward_RecordsSupplierPurchase(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)

	supplier, err := f.catalog.CreateSupplier(admin, service.SupplierInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("CreateSupplier failed: %v", err)
	}
	item, err := f.catalog.CreateItem(admin, service.ItemInput{Name: "Clamp", SupplierID: &supplier.ID})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	_, err = f.ledger.PostInward(admin, service.PostInwardRequest{Lines: []service.LineInput{{
		ItemID:   item.ID,
		Quantity: qty(4),
		UnitCost: decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
	}}})
	if err != nil {
		t.Fatalf("PostInward failed: %v", err)
	}

	got, err := f.catalog.GetSupplier(admin, supplier.ID)
	if err != nil {
		t.Fatalf("GetSupplier failed: %v", err)
	}
	if got.LastPurchaseDate == nil {
		t.Error("last purchase date not recorded")
	}
	if !got.LastPurchaseRate.Valid || !got.LastPurchaseRate.Decimal.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("last purchase rate = %v, want 12.5", got.LastPurchaseRate)
	}
}

func TestLedger_Authorization(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	viewer, _ := f.sessionFor(t, "viewer", model.RoleViewer)
	manager, _ := f.sessionFor(t, "manager", model.RoleManager)
	item := f.createItem(t, admin, "Shim", 10, 0)

	_, err := f.ledger.PostInward(viewer, service.PostInwardRequest{Lines: []service.LineInput{line(item.ID, 1)}})
	if !errors.Is(err, service.ErrForbidden) {
		t.Errorf("viewer PostInward: expected ErrForbidden, got %v", err)
	}
	if _, err := f.ledger.ListStock(viewer, service.StockFilter{}); err != nil {
		t.Errorf("viewer ListStock: %v", err)
	}
	if _, err := f.ledger.ReconcileStock(manager); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("manager ReconcileStock: expected ErrForbidden, got %v", err)
	}
	if _, err := f.ledger.ListStock("bogus", service.StockFilter{}); !errors.Is(err, service.ErrUnauthenticated) {
		t.Errorf("bogus token: expected ErrUnauthenticated, got %v", err)
	}

	if err := f.auth.Logout(manager); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	_, err = f.ledger.PostIssue(manager, service.PostIssueRequest{Lines: []service.LineInput{line(item.ID, 1)}})
	if !errors.Is(err, service.ErrUnauthenticated) {
		t.Errorf("after logout: expected ErrUnauthenticated, got %v", err)
	}
	if got := f.onHand(t, item.ID); !got.Equal(qty(10)) {
		t.Errorf("on hand changed to %s", got)
	}
}

func TestListStock_BelowThresholdFilter(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	f.createItem(t, admin, "Plenty", 100, 10)
	low := f.createItem(t, admin, "Scarce", 5, 10)

	stock, err := f.ledger.ListStock(admin, service.StockFilter{BelowThresholdOnly: true})
	if err != nil {
		t.Fatalf("ListStock failed: %v", err)
	}
	if len(stock) != 1 || stock[0].ItemID != low.ID || !stock[0].BelowThreshold {
		t.Errorf("unexpected stock rows: %+v", stock)
	}
}

func TestPostInward_RejectsExcessPrecision(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	item := f.createItem(t, admin, "Shim", 0, 0)

	tests := []struct {
		name  string
		line  service.LineInput
		field string
		kind  service.ValidationKind
	}{
		{"quantity", service.LineInput{ItemID: item.ID, Quantity: decimal.RequireFromString("1.2345")}, "quantity", service.InvalidQuantity},
		{"unit cost", service.LineInput{
			ItemID:   item.ID,
			Quantity: qty(1),
			UnitCost: decimal.NewNullDecimal(decimal.RequireFromString("2.125")),
		}, "unit_cost", service.InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.PostInward(admin, service.PostInwardRequest{Lines: []service.LineInput{tt.line}})
			var ve *service.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Kind != tt.kind || ve.Field != tt.field {
				t.Errorf("got kind %s field %q, want %s %q", ve.Kind, ve.Field, tt.kind, tt.field)
			}
		})
	}

	ok := service.LineInput{
		ItemID:   item.ID,
		Quantity: decimal.RequireFromString("1.250"),
		UnitCost: decimal.NewNullDecimal(decimal.RequireFromString("2.10")),
	}
	if _, err := f.ledger.PostInward(admin, service.PostInwardRequest{Lines: []service.LineInput{ok}}); err != nil {
		t.Fatalf("trailing zeros should be accepted: %v", err)
	}
	if got := f.onHand(t, item.ID); !got.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("on hand = %s, want 1.25", got)
	}
}

func TestReconcileStock_FractionalQuantitiesBalance(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.sessionFor(t, "admin", model.RoleAdmin)
	item := f.createItem(t, admin, "Wire (m)", 0, 0)

	for _, q := range []string{"0.1", "0.2", "0.7"} {
		req := service.PostInwardRequest{Lines: []service.LineInput{{ItemID: item.ID, Quantity: decimal.RequireFromString(q)}}}
		if _, err := f.ledger.PostInward(admin, req); err != nil {
			t.Fatalf("PostInward %s failed: %v", q, err)
		}
	}
	issue := service.PostIssueRequest{Lines: []service.LineInput{{ItemID: item.ID, Quantity: decimal.RequireFromString("0.3")}}}
	if _, err := f.ledger.PostIssue(admin, issue); err != nil {
		t.Fatalf("PostIssue failed: %v", err)
	}

	diffs, err := f.ledger.ReconcileStock(admin)
	if err != nil {
		t.Fatalf("ReconcileStock failed: %v", err)
	}
	if len(diffs) != 0 {
		t.Errorf("books should balance, got %+v", diffs)
	}
	if got := f.onHand(t, item.ID); !got.Equal(decimal.RequireFromString("0.7")) {
		t.Errorf("on hand = %s, want 0.7", got)
	}
}
