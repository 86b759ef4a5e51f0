package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog records one attempted mutation, successful or not.
type AuditLog struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Timestamp time.Time  `gorm:"not null;index" json:"timestamp"`
	Username  string     `gorm:"type:varchar(100);not null;index" json:"username"`
	Action    string     `gorm:"type:varchar(50);not null;index" json:"action"`
	Entity    string     `gorm:"column:table_name;type:varchar(50);not null;index" json:"table_name"`
	RecordID  *uuid.UUID `gorm:"type:uuid" json:"record_id,omitempty"`
	Detail    string     `gorm:"type:text" json:"detail,omitempty"`
	Success   bool       `gorm:"not null" json:"success"`
}

// Audit actions.
const (
	ActionLogin          = "LOGIN"
	ActionLogout         = "LOGOUT"
	ActionCreate         = "CREATE"
	ActionUpdate         = "UPDATE"
	ActionDelete         = "DELETE"
	ActionPostInward     = "POST_INWARD"
	ActionPostIssue      = "POST_ISSUE"
	ActionChangePassword = "CHANGE_PASSWORD"
	ActionChangeRole     = "CHANGE_ROLE"
)
