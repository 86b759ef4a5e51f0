package handler

import (
	"strings"
	"time"

	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type LedgerHandler struct {
	service service.LedgerService
}

func NewLedgerHandler(s service.LedgerService) *LedgerHandler {
	return &LedgerHandler{service: s}
}

// PostInward records goods received
// POST /api/v1/transactions/inward
func (h *LedgerHandler) PostInward(c *fiber.Ctx) error {
	var req service.PostInwardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	result, err := h.service.PostInward(getToken(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Inward posted", "data": result})
}

// PostIssue records goods issued out of stock
// POST /api/v1/transactions/issue
func (h *LedgerHandler) PostIssue(c *fiber.Ctx) error {
	var req service.PostIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	result, err := h.service.PostIssue(getToken(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Issue posted", "data": result})
}

// GetTransactions lists history, newest first.
// Query params: kind, item_id, posted_by, invoice_ref, from, to (YYYY-MM-DD), limit, offset
func (h *LedgerHandler) GetTransactions(c *fiber.Ctx) error {
	filter := repository.TransactionFilter{
		Kind:       model.TransactionKind(strings.ToUpper(c.Query("kind"))),
		InvoiceRef: c.Query("invoice_ref"),
		Limit:      c.QueryInt("limit", 0),
		Offset:     c.QueryInt("offset", 0),
	}

	if v := c.Query("item_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid item_id"})
		}
		filter.ItemID = &id
	}
	if v := c.Query("posted_by"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid posted_by"})
		}
		filter.PostedBy = &id
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid from date, use YYYY-MM-DD"})
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid to date, use YYYY-MM-DD"})
		}
		// Inclusive of the whole day
		t = t.Add(24*time.Hour - time.Nanosecond)
		filter.To = &t
	}

	transactions, err := h.service.ListTransactions(getToken(c), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(transactions)
}

func (h *LedgerHandler) GetTransaction(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid transaction ID"})
	}

	tx, err := h.service.GetTransaction(getToken(c), txID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tx)
}

// GetStock returns current stock levels.
// Query params: include_inactive, below_threshold
func (h *LedgerHandler) GetStock(c *fiber.Ctx) error {
	filter := service.StockFilter{
		IncludeInactive:    c.QueryBool("include_inactive", false),
		BelowThresholdOnly: c.QueryBool("below_threshold", false),
	}
	levels, err := h.service.ListStock(getToken(c), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(levels)
}

// Reconcile compares cached on-hand against the ledger
// GET /api/v1/stock/reconcile
func (h *LedgerHandler) Reconcile(c *fiber.Ctx) error {
	diffs, err := h.service.ReconcileStock(getToken(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"balanced": len(diffs) == 0, "discrepancies": diffs})
}
