package domain

import (
	"encoding/json"
	"time"
)

// AuditLogEntry records one auditor action (approve/reject, or any other
// administrative mutation) for traceability, independent of the
// before/after fields already carried on Job itself.
type AuditLogEntry struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string          `gorm:"column:user_id;size:64;index" json:"user_id,omitempty"`
	ActionType   string          `gorm:"column:action_type;size:50;index;not null" json:"action_type"`
	ResourceType string          `gorm:"column:resource_type;size:50;index;not null" json:"resource_type"`
	ResourceID   string          `gorm:"column:resource_id;size:64" json:"resource_id,omitempty"`
	Changes      json.RawMessage `gorm:"column:changes;type:jsonb" json:"changes,omitempty"`
	IPAddress    string          `gorm:"column:ip_address;size:45" json:"ip_address,omitempty"`
	UserAgent    string          `gorm:"column:user_agent;size:255" json:"user_agent,omitempty"`
	CreatedAt    time.Time       `gorm:"index;autoCreateTime" json:"created_at"`
}

func (AuditLogEntry) TableName() string { return "audit_logs" }

// AuditChange captures a single before/after field snapshot, marshaled
// into AuditLogEntry.Changes.
type AuditChange struct {
	Field  string      `json:"field"`
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

const (
	ActionJobApproved = "job_approved"
	ActionJobRejected = "job_rejected"
	ActionJobRequeued = "job_requeued"
	ActionPushRedrive = "push_redrive"
)
