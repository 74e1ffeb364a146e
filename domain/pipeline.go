package domain

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"
)

// PipelineStatus tracks whether a rule's script pipeline is live.
type PipelineStatus string

const (
	PipelineDraft    PipelineStatus = "draft"
	PipelineActive   PipelineStatus = "active"
	PipelineInactive PipelineStatus = "inactive"
)

// ExecutionStatus is the terminal or in-flight status of one
// PipelineExecution.
type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionTimeout ExecutionStatus = "timeout"
)

// Pipeline is the operator-supplied transformation script bound to one
// rule: at most one per rule, executed by the script sandbox after audit
// adjudication and before push.
type Pipeline struct {
	ID             string          `gorm:"primaryKey;size:64" json:"id"`
	Name           string          `gorm:"size:100;not null" json:"name"`
	Description    string          `gorm:"type:text" json:"description,omitempty"`
	RuleID         string          `gorm:"column:rule_id;size:64;uniqueIndex;not null" json:"rule_id"`
	Status         PipelineStatus  `gorm:"size:20;default:draft" json:"status"`
	ScriptContent  string          `gorm:"column:script_content;type:text;not null" json:"script_content"`
	Requirements   string          `gorm:"type:text" json:"requirements,omitempty"`
	TimeoutSeconds int             `gorm:"column:timeout_seconds;default:300" json:"timeout_seconds"`
	MaxRetries     int             `gorm:"column:max_retries;default:1" json:"max_retries"`
	MemoryLimitMB  int             `gorm:"column:memory_limit_mb;default:512" json:"memory_limit_mb"`
	EnvVariables   json.RawMessage `gorm:"column:env_variables;type:jsonb" json:"env_variables,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	CreatedBy      string          `gorm:"column:created_by;size:64" json:"created_by,omitempty"`
}

func (Pipeline) TableName() string { return "pipelines" }

// CacheKey identifies the sandbox's per-rule runtime cache entry: it
// changes whenever Requirements changes, invalidating the cached
// interpreter environment.
func (p *Pipeline) CacheKey() string {
	return p.ID + ":" + requirementsDigest(p.Requirements)
}

// PipelineExecution records one job's invocation of its rule's pipeline
// script: input/output snapshots, captured stdout/stderr, duration and
// terminal status.
type PipelineExecution struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	PipelineID   string          `gorm:"column:pipeline_id;size:64;index;not null" json:"pipeline_id"`
	JobID        string          `gorm:"column:task_id;size:64;index;not null" json:"job_id"`
	Status       ExecutionStatus `gorm:"size:20;index;default:pending" json:"status"`
	RetryCount   int             `gorm:"column:retry_count;default:0" json:"retry_count"`
	InputData    json.RawMessage `gorm:"column:input_data;type:jsonb" json:"input_data,omitempty"`
	OutputData   json.RawMessage `gorm:"column:output_data;type:jsonb" json:"output_data,omitempty"`
	Stdout       string          `gorm:"type:text" json:"stdout,omitempty"`
	Stderr       string          `gorm:"type:text" json:"stderr,omitempty"`
	ErrorMessage string          `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	DurationMS   int             `gorm:"column:duration_ms" json:"duration_ms,omitempty"`
	MemoryUsedMB int             `gorm:"column:memory_used_mb" json:"memory_used_mb,omitempty"`
	CreatedAt    time.Time       `gorm:"index;autoCreateTime" json:"created_at"`
	StartedAt    *time.Time      `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (PipelineExecution) TableName() string { return "pipeline_executions" }

// NextRetryDelay doubles the base delay per attempt, capped at cap (the
// sandbox's retry/backoff rule uses 300s).
func NextRetryDelay(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

func requirementsDigest(requirements string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(requirements))
	return fmt.Sprintf("%016x", h.Sum64())
}
