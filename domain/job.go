// Package domain holds the persistent entities shared by every stage of
// the pipeline: orchestrator, store, extract, sandbox and webhook all
// operate on these types rather than on raw SQL rows or queue payloads.
package domain

import (
	"encoding/json"
	"time"
)

// JobStatus is the job's position in the processing state machine.
type JobStatus string

const (
	JobQueued       JobStatus = "queued"
	JobProcessing   JobStatus = "processing"
	JobPendingAudit JobStatus = "pending_audit"
	JobCompleted    JobStatus = "completed"
	JobRejected     JobStatus = "rejected"
	JobPushing      JobStatus = "pushing"
	JobPushSuccess  JobStatus = "push_success"
	JobPushFailed   JobStatus = "push_failed"
	JobFailed       JobStatus = "failed"
)

// AuditReason is one entry in a job's accumulated audit-gate reasons: a
// failing validation predicate or a below-threshold field confidence.
type AuditReason struct {
	Field  string `json:"field"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Job is the primary entity: one row per uploaded document per rule
// version, carrying OCR output, extracted fields, confidence map and
// lifecycle timestamps. Extracted/structured payloads are stored as raw
// JSON (jsonb) rather than typed columns, since their shape follows the
// bound rule's schema tree and varies per rule.
type Job struct {
	ID             string          `gorm:"primaryKey;size:64" json:"id"`
	FileName       string          `gorm:"size:255;not null" json:"file_name"`
	ObjectKey      string          `gorm:"column:object_key;size:500;not null" json:"object_key"`
	ContentHash    string          `gorm:"column:content_hash;size:64;index;not null" json:"content_hash"`
	PageCount      int             `gorm:"default:1" json:"page_count"`
	RuleID         string          `gorm:"size:64;index;not null" json:"rule_id"`
	RuleVersion    string          `gorm:"size:20;not null" json:"rule_version"`
	Status         JobStatus       `gorm:"size:20;index;not null;default:queued" json:"status"`
	IsInstant      bool            `gorm:"column:is_instant;default:false" json:"is_instant"`
	OCRText        string          `gorm:"column:ocr_text;type:text" json:"ocr_text,omitempty"`
	OCRStructured  json.RawMessage `gorm:"column:ocr_structured;type:jsonb" json:"ocr_structured,omitempty"`
	ExtractedData  json.RawMessage `gorm:"column:extracted_data;type:jsonb" json:"extracted_data,omitempty"`
	Confidence     json.RawMessage `gorm:"column:confidence_scores;type:jsonb" json:"confidence_scores,omitempty"`
	AuditReasons   []AuditReason   `gorm:"column:audit_reasons;type:jsonb;serializer:json" json:"audit_reasons,omitempty"`
	AuditorID      string          `gorm:"column:auditor_id;size:64" json:"auditor_id,omitempty"`
	AuditedAt      *time.Time      `gorm:"column:audited_at" json:"audited_at,omitempty"`
	LLMTokenCount  int             `gorm:"column:llm_token_count;default:0" json:"llm_token_count"`
	LLMCost        float64         `gorm:"column:llm_cost;type:numeric(10,4);default:0" json:"llm_cost"`
	CreatedAt      time.Time       `gorm:"index;autoCreateTime" json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	LastError      string          `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
}

// TableName pins the GORM table name regardless of the struct's plural
// inference, matching the store's migrations.
func (Job) TableName() string { return "jobs" }

// NeedsAudit reports whether the job's current state requires a non-empty
// audit-reasons list (pending_audit jobs are never reasonless). It does
// not itself check AuditReasons.
func (j *Job) NeedsAudit() bool {
	return j.Status == JobPendingAudit
}

// CorrectedConfidence is the confidence value pinned to any field an
// auditor manually corrects.
const CorrectedConfidence = 100
