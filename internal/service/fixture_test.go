package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go-stock-ledger/internal/lockset"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/service"
	"go-stock-ledger/internal/session"
	"go-stock-ledger/pkg/database"
)

type published struct {
	event   string
	payload interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{event, payload})
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.event == event {
			c++
		}
	}
	return c
}

type fixture struct {
	db        *gorm.DB
	sessions  *session.Registry
	gate      service.Gate
	auth      service.AuthService
	ledger    service.LedgerService
	catalog   service.CatalogService
	users     service.UserService
	dashboard service.DashboardService
	audit     service.AuditService
	userRepo  repository.UserRepository
	itemRepo  repository.ItemRepository
	txRepo    repository.TransactionRepository
	notifier  *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
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
	notifier := &recordingNotifier{}

	return &fixture{
		db:       db,
		sessions: sessions,
		gate:     gate,
		auth:     service.NewAuthService(userRepo, sessions, auditRepo),
		ledger: service.NewLedgerService(db, gate, itemRepo, supplierRepo, txRepo, auditRepo, locks, notifier,
			service.LedgerOptions{MaxRetries: 3, RetryBackoff: time.Millisecond}),
		catalog:   service.NewCatalogService(db, gate, itemRepo, supplierRepo, specRepo, txRepo, auditRepo, locks, notifier),
		users:     service.NewUserService(gate, userRepo, sessions, auditRepo),
		dashboard: service.NewDashboardService(gate, txRepo),
		audit:     service.NewAuditService(gate, auditRepo),
		userRepo:  userRepo,
		itemRepo:  itemRepo,
		txRepo:    txRepo,
		notifier:  notifier,
	}
}

// sessionFor stores a user with the role and issues a session for it directly,
// skipping the password hash.
func (f *fixture) sessionFor(t *testing.T, username string, role model.Role) (string, *model.User) {
	t.Helper()
	user := &model.User{Username: username, Role: role, PasswordHash: "unused"}
	if err := f.userRepo.Create(user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	s, err := f.sessions.Issue(user, false)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return s.Token, user
}

func (f *fixture) createItem(t *testing.T, token, name string, opening, threshold int64) *model.Item {
	t.Helper()
	item, err := f.catalog.CreateItem(token, service.ItemInput{
		Name:             name,
		ReorderThreshold: decimal.NewFromInt(threshold),
		OpeningStock:     decimal.NewFromInt(opening),
	})
	if err != nil {
		t.Fatalf("CreateItem %s: %v", name, err)
	}
	return item
}

func (f *fixture) onHand(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	item, err := f.itemRepo.FindByIDAny(id)
	if err != nil {
		t.Fatalf("FindByIDAny: %v", err)
	}
	return item.OnHand
}

func qty(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func line(id uuid.UUID, n int64) service.LineInput {
	return service.LineInput{ItemID: id, Quantity: qty(n)}
}
