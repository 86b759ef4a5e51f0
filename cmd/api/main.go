package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go-stock-ledger/internal/config"
	"go-stock-ledger/internal/handler"
	"go-stock-ledger/internal/lockset"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/service"
	"go-stock-ledger/internal/session"
	"go-stock-ledger/internal/ws"
	"go-stock-ledger/pkg/database"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// 2. Setup Database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to migrate database", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Sessions & WebSocket Hub
	sessions := session.NewRegistry(session.Options{
		IdleTTL: cfg.Session.IdleTTL,
		StayTTL: cfg.Session.StayTTL,
	})
	go sessions.Run(ctx, cfg.Session.PurgeInterval)

	wsHub := ws.NewHub(cfg.AlertBuffer)
	go wsHub.Run(ctx)

	// 4. Dependency Injection (Wiring Layers)
	userRepo := repository.NewUserRepo(db)
	itemRepo := repository.NewItemRepo(db)
	supplierRepo := repository.NewSupplierRepo(db)
	specRepo := repository.NewSpecificationRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	// 5. Seed the first admin
	created, generated, err := service.SeedAdmin(userRepo, cfg.Seed.AdminUsername, cfg.Seed.AdminPassword)
	if err != nil {
		slog.Error("failed to seed admin user", "err", err)
		os.Exit(1)
	}
	if created {
		slog.Info("admin user created", "username", cfg.Seed.AdminUsername)
		if generated != "" {
			// Printed once; there is no other way to recover it.
			log.Printf("Generated admin password for %s: %s", cfg.Seed.AdminUsername, generated)
		}
	}

	locks := lockset.New()
	gate := service.NewGate(sessions)
	services := handler.Services{
		Gate: gate,
		Auth: service.NewAuthService(userRepo, sessions, auditRepo),
		Ledger: service.NewLedgerService(db, gate, itemRepo, supplierRepo, txRepo, auditRepo, locks, wsHub, service.LedgerOptions{
			MaxRetries:   cfg.Ledger.MaxRetries,
			RetryBackoff: cfg.Ledger.RetryBackoff,
		}),
		Catalog:   service.NewCatalogService(db, gate, itemRepo, supplierRepo, specRepo, txRepo, auditRepo, locks, wsHub),
		Users:     service.NewUserService(gate, userRepo, sessions, auditRepo),
		Dashboard: service.NewDashboardService(gate, txRepo),
		Audit:     service.NewAuditService(gate, auditRepo),
	}

	// 6. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName: cfg.AppName,
	})

	// Middleware
	app.Use(logger.New())  // Logging request
	app.Use(recover.New()) // Panic recovery
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// 7. Routes
	handler.SetupRoutes(app, services, wsHub)

	// 8. Graceful Shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		slog.Error("server forced to shutdown", "err", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	slog.Info("server exited")
}
