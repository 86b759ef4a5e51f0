package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"go-stock-ledger/internal/handler"
	"go-stock-ledger/internal/lockset"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/service"
	"go-stock-ledger/internal/session"
	"go-stock-ledger/pkg/database"
)

const adminPassword = "admin-password"

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	sessions := session.NewRegistry(session.Options{IdleTTL: 30 * time.Minute, StayTTL: 30 * 24 * time.Hour})
	gate := service.NewGate(sessions)
	userRepo := repository.NewUserRepo(db)
	itemRepo := repository.NewItemRepo(db)
	supplierRepo := repository.NewSupplierRepo(db)
	specRepo := repository.NewSpecificationRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	auditRepo := repository.NewAuditRepo(db)
	locks := lockset.New()

	if _, _, err := service.SeedAdmin(userRepo, "admin", adminPassword); err != nil {
		t.Fatalf("SeedAdmin failed: %v", err)
	}

	app := fiber.New()
	handler.SetupRoutes(app, handler.Services{
		Gate:      gate,
		Auth:      service.NewAuthService(userRepo, sessions, auditRepo),
		Ledger:    service.NewLedgerService(db, gate, itemRepo, supplierRepo, txRepo, auditRepo, locks, nil, service.LedgerOptions{MaxRetries: 3}),
		Catalog:   service.NewCatalogService(db, gate, itemRepo, supplierRepo, specRepo, txRepo, auditRepo, locks, nil),
		Users:     service.NewUserService(gate, userRepo, sessions, auditRepo),
		Dashboard: service.NewDashboardService(gate, txRepo),
		Audit:     service.NewAuditService(gate, auditRepo),
	}, nil)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, raw, err)
		}
	} else if len(raw) > 0 {
		out["list"] = json.RawMessage(raw)
	}
	return resp.StatusCode, out
}

func login(t *testing.T, app *fiber.App, username, password string) string {
	t.Helper()
	status, body := do(t, app, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{"username": username, "password": password})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d, body %v", username, status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login %s: no token in %v", username, body)
	}
	return token
}

func TestLoginAndAuthErrors(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{"username": "admin", "password": "nope"})
	if status != http.StatusUnauthorized {
		t.Errorf("bad password: status %d, body %v", status, body)
	}
	status, _ = do(t, app, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{"username": "admin"})
	if status != http.StatusBadRequest {
		t.Errorf("missing password: status %d", status)
	}

	status, _ = do(t, app, http.MethodGet, "/api/v1/stock", "", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("no token: status %d", status)
	}
	status, _ = do(t, app, http.MethodGet, "/api/v1/stock", "garbage", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("bad token: status %d", status)
	}

	token := login(t, app, "admin", adminPassword)
	status, body = do(t, app, http.MethodGet, "/api/v1/auth/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status %d", status)
	}
	if caps, _ := body["capabilities"].([]interface{}); len(caps) != 8 {
		t.Errorf("admin capabilities = %v", body["capabilities"])
	}

	status, _ = do(t, app, http.MethodPost, "/api/v1/auth/logout", token, nil)
	if status != http.StatusOK {
		t.Errorf("logout: status %d", status)
	}
	status, _ = do(t, app, http.MethodGet, "/api/v1/auth/me", token, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("me after logout: status %d", status)
	}
}

func TestLedgerFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)
	admin := login(t, app, "admin", adminPassword)

	status, body := do(t, app, http.MethodPost, "/api/v1/items", admin, fiber.Map{
		"name":              "Bolt-M6",
		"reorder_threshold": 20,
		"opening_stock":     100,
	})
	if status != http.StatusCreated {
		t.Fatalf("create item: status %d, body %v", status, body)
	}
	itemID := body["data"].(map[string]interface{})["id"].(string)

	status, _ = do(t, app, http.MethodPost, "/api/v1/users", admin, fiber.Map{
		"username": "viewer", "password": "viewer-pass", "role": "Viewer",
	})
	if status != http.StatusCreated {
		t.Fatalf("create viewer: status %d", status)
	}
	viewer := login(t, app, "viewer", "viewer-pass")

	issue := fiber.Map{"lines": []fiber.Map{{"item_id": itemID, "quantity": 140}}}

	status, _ = do(t, app, http.MethodPost, "/api/v1/transactions/issue", viewer, issue)
	if status != http.StatusForbidden {
		t.Errorf("viewer issue: status %d, want 403", status)
	}

	status, body = do(t, app, http.MethodPost, "/api/v1/transactions/issue", admin, issue)
	if status != http.StatusCreated {
		t.Fatalf("issue: status %d, body %v", status, body)
	}
	alerts := body["data"].(map[string]interface{})["alerts"].([]interface{})
	if len(alerts) != 1 {
		t.Errorf("expected one reorder alert, got %v", alerts)
	}

	status, body = do(t, app, http.MethodPost, "/api/v1/transactions/issue", admin,
		fiber.Map{"lines": []fiber.Map{{"item_id": itemID, "quantity": 20}}})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("overdraw: status %d, want 422", status)
	}
	shortfalls, _ := body["shortfalls"].([]interface{})
	if len(shortfalls) != 1 {
		t.Errorf("expected one shortfall, got %v", body)
	}

	status, body = do(t, app, http.MethodPost, "/api/v1/transactions/inward", admin,
		fiber.Map{"lines": []fiber.Map{{"item_id": itemID, "quantity": 0}}})
	if status != http.StatusBadRequest || body["kind"] != string(service.InvalidQuantity) {
		t.Errorf("zero quantity: status %d, body %v", status, body)
	}

	status, body = do(t, app, http.MethodGet, "/api/v1/transactions?kind=issue", viewer, nil)
	if status != http.StatusOK {
		t.Fatalf("list transactions: status %d", status)
	}
	var txs []map[string]interface{}
	if err := json.Unmarshal(body["list"].(json.RawMessage), &txs); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("expected 1 issue transaction, got %d", len(txs))
	}

	status, _ = do(t, app, http.MethodGet, "/api/v1/transactions/not-a-uuid", viewer, nil)
	if status != http.StatusBadRequest {
		t.Errorf("bad id: status %d", status)
	}

	status, _ = do(t, app, http.MethodGet, "/api/v1/specifications", viewer, nil)
	if status != http.StatusForbidden {
		t.Errorf("viewer specifications: status %d, want 403", status)
	}

	status, body = do(t, app, http.MethodGet, "/api/v1/stock/reconcile", admin, nil)
	if status != http.StatusOK || body["balanced"] != true {
		t.Errorf("reconcile: status %d, body %v", status, body)
	}
}

func TestCatalogConflictsOverHTTP(t *testing.T) {
	app := newTestApp(t)
	admin := login(t, app, "admin", adminPassword)

	status, body := do(t, app, http.MethodPost, "/api/v1/suppliers", admin, fiber.Map{"name": "Acme", "gst_no": "GST1"})
	if status != http.StatusCreated {
		t.Fatalf("create supplier: status %d, body %v", status, body)
	}
	supplierID := body["data"].(map[string]interface{})["id"].(string)

	status, _ = do(t, app, http.MethodPost, "/api/v1/suppliers", admin, fiber.Map{"name": "Other", "gst_no": "GST1"})
	if status != http.StatusConflict {
		t.Errorf("duplicate GST: status %d, want 409", status)
	}

	status, _ = do(t, app, http.MethodPost, "/api/v1/items", admin, fiber.Map{"name": "Hinge", "supplier_id": supplierID})
	if status != http.StatusCreated {
		t.Fatalf("create item: status %d", status)
	}
	status, _ = do(t, app, http.MethodDelete, "/api/v1/suppliers/"+supplierID, admin, nil)
	if status != http.StatusConflict {
		t.Errorf("delete referenced supplier: status %d, want 409", status)
	}

	status, _ = do(t, app, http.MethodGet, "/api/v1/items/00000000-0000-0000-0000-000000000001", admin, nil)
	if status != http.StatusNotFound {
		t.Errorf("missing item: status %d, want 404", status)
	}
}
