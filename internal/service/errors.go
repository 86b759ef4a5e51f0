package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrValidation         = errors.New("validation failed")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("concurrent update conflict, please retry")
	ErrDuplicate          = errors.New("already exists")
	ErrInUse              = errors.New("still referenced by active items")
)

type ValidationKind string

const (
	InvalidItem     ValidationKind = "invalid_item"
	InvalidQuantity ValidationKind = "invalid_quantity"
	InvalidInput    ValidationKind = "invalid_input"
)

// ValidationError rejects malformed input before any state change.
// Line is 1-based and zero when the error is not tied to a line.
type ValidationError struct {
	Kind    ValidationKind `json:"kind"`
	Field   string         `json:"field,omitempty"`
	Line    int            `json:"line,omitempty"`
	ItemID  *uuid.UUID     `json:"item_id,omitempty"`
	Message string         `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalidInput(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: InvalidInput, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Shortfall describes one item an issue would overdraw.
type Shortfall struct {
	ItemID    uuid.UUID       `json:"item_id"`
	ItemName  string          `json:"item_name"`
	Requested decimal.Decimal `json:"requested"`
	OnHand    decimal.Decimal `json:"on_hand"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

type InsufficientStockError struct {
	Shortfalls []Shortfall `json:"shortfalls"`
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("%s (short by %s)", s.ItemName, s.Shortfall)
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
