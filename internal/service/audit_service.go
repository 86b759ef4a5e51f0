package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
)

type AuditService interface {
	ListAuditLogs(token string, filter repository.AuditFilter) ([]model.AuditLog, error)
}

type auditService struct {
	gate      Gate
	auditRepo repository.AuditRepository
}

func NewAuditService(gate Gate, auditRepo repository.AuditRepository) AuditService {
	return &auditService{gate: gate, auditRepo: auditRepo}
}

func (s *auditService) ListAuditLogs(token string, filter repository.AuditFilter) ([]model.AuditLog, error) {
	if _, err := s.gate.Authorize(token, model.CapViewAudit); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	return s.auditRepo.FindAll(filter)
}

// auditor appends audit rows on behalf of the other services. A failed audit
// write is logged and never fails the operation it describes.
type auditor struct {
	repo repository.AuditRepository
}

func (a auditor) record(username, action, entity string, recordID *uuid.UUID, opErr error, detail string) {
	if a.repo == nil {
		return
	}
	entry := &model.AuditLog{
		Timestamp: time.Now().UTC(),
		Username:  username,
		Action:    action,
		Entity:    entity,
		RecordID:  recordID,
		Detail:    detail,
		Success:   opErr == nil,
	}
	if opErr != nil {
		if detail != "" {
			entry.Detail = detail + ": " + opErr.Error()
		} else {
			entry.Detail = opErr.Error()
		}
	}
	if err := a.repo.Create(entry); err != nil {
		slog.Error("audit write failed", "action", action, "table", entity, "err", err)
	}
}

func idPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// notFound maps gorm's missing-row error onto ErrNotFound.
func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return err
}
