package repository

import (
	"go-stock-ledger/internal/model"

	"gorm.io/gorm"
)

type AuditFilter struct {
	Username string
	Action   string
	Limit    int
}

type AuditRepository interface {
	Create(entry *model.AuditLog) error
	FindAll(filter AuditFilter) ([]model.AuditLog, error)
}

type auditRepo struct {
	db *gorm.DB
}

func NewAuditRepo(db *gorm.DB) AuditRepository {
	return &auditRepo{db}
}

func (r *auditRepo) Create(entry *model.AuditLog) error {
	return r.db.Create(entry).Error
}

func (r *auditRepo) FindAll(filter AuditFilter) ([]model.AuditLog, error) {
	q := r.db.Model(&model.AuditLog{})
	if filter.Username != "" {
		q = q.Where("username = ?", filter.Username)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var entries []model.AuditLog
	err := q.Order("timestamp DESC, id DESC").Find(&entries).Error
	return entries, err
}
