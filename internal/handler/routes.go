package handler

import (
	"go-stock-ledger/internal/middleware"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/service"
	"go-stock-ledger/internal/ws"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Gate      service.Gate
	Auth      service.AuthService
	Ledger    service.LedgerService
	Catalog   service.CatalogService
	Users     service.UserService
	Dashboard service.DashboardService
	Audit     service.AuditService
}

// SetupRoutes mounts the REST API under /api/v1 and, when hub is non-nil,
// the event stream at /ws.
func SetupRoutes(app *fiber.App, s Services, hub *ws.Hub) {
	authHandler := NewAuthHandler(s.Auth)
	ledgerHandler := NewLedgerHandler(s.Ledger)
	catalogHandler := NewCatalogHandler(s.Catalog)
	userHandler := NewUserHandler(s.Users)
	dashHandler := NewDashboardHandler(s.Dashboard)
	roleHandler := NewRoleHandler()
	auditHandler := NewAuditHandler(s.Audit)

	api := app.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)
	auth.Post("/logout", authHandler.Logout)

	// ============ PROTECTED ROUTES ============
	protected := api.Group("", middleware.RequireAuth(s.Auth))
	can := middleware.RequireCapability

	protected.Get("/auth/me", authHandler.Me)
	protected.Post("/auth/heartbeat", authHandler.Heartbeat)
	protected.Post("/auth/change-password", authHandler.ChangePassword)

	// Dashboard Routes
	protected.Get("/dashboard/stats", can(model.CapViewStock), dashHandler.GetDashboardStats)
	protected.Get("/dashboard/stock-movement", can(model.CapViewTransactions), dashHandler.GetStockMovement)

	// Stock & Transaction Routes
	protected.Get("/stock", can(model.CapViewStock), ledgerHandler.GetStock)
	protected.Get("/stock/reconcile", can(model.CapManageCatalog), ledgerHandler.Reconcile)
	protected.Get("/transactions", can(model.CapViewTransactions), ledgerHandler.GetTransactions)
	protected.Get("/transactions/:id", can(model.CapViewTransactions), ledgerHandler.GetTransaction)
	protected.Post("/transactions/inward", can(model.CapPostTransaction), ledgerHandler.PostInward)
	protected.Post("/transactions/issue", can(model.CapPostTransaction), ledgerHandler.PostIssue)

	// Catalog Routes
	protected.Get("/items", can(model.CapViewCatalog), catalogHandler.GetItems)
	protected.Get("/items/:id", can(model.CapViewCatalog), catalogHandler.GetItem)
	protected.Post("/items", can(model.CapManageCatalog), catalogHandler.CreateItem)
	protected.Put("/items/:id", can(model.CapManageCatalog), catalogHandler.UpdateItem)
	protected.Delete("/items/:id", can(model.CapManageCatalog), catalogHandler.DeleteItem)

	protected.Get("/suppliers", can(model.CapViewCatalog), catalogHandler.GetSuppliers)
	protected.Get("/suppliers/:id", can(model.CapViewCatalog), catalogHandler.GetSupplier)
	protected.Post("/suppliers", can(model.CapManageCatalog), catalogHandler.CreateSupplier)
	protected.Put("/suppliers/:id", can(model.CapManageCatalog), catalogHandler.UpdateSupplier)
	protected.Delete("/suppliers/:id", can(model.CapManageCatalog), catalogHandler.DeleteSupplier)

	protected.Get("/specifications", can(model.CapViewSpecs), catalogHandler.GetSpecifications)
	protected.Get("/specifications/:id", can(model.CapViewSpecs), catalogHandler.GetSpecification)
	protected.Post("/specifications", can(model.CapManageCatalog), catalogHandler.CreateSpecification)
	protected.Put("/specifications/:id", can(model.CapManageCatalog), catalogHandler.UpdateSpecification)
	protected.Delete("/specifications/:id", can(model.CapManageCatalog), catalogHandler.DeleteSpecification)

	// User Management Routes
	protected.Get("/users", can(model.CapManageUsers), userHandler.GetUsers)
	protected.Get("/users/:id", can(model.CapManageUsers), userHandler.GetUser)
	protected.Post("/users", can(model.CapManageUsers), userHandler.CreateUser)
	protected.Put("/users/:id/role", can(model.CapManageUsers), userHandler.ChangeRole)
	protected.Post("/users/:id/reset-password", can(model.CapManageUsers), userHandler.ResetPassword)
	protected.Delete("/users/:id", can(model.CapManageUsers), userHandler.DeleteUser)

	// Role & Audit Routes
	protected.Get("/roles", roleHandler.GetRoles)
	protected.Get("/audit-logs", can(model.CapViewAudit), auditHandler.GetAuditLogs)

	// WebSocket Route
	if hub != nil {
		app.Use("/ws", middleware.RequireWebSocket(s.Gate))
		app.Get("/ws", websocket.New(hub.Serve))
	}
}
