package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"idp.evalgo.org/common"
	"idp.evalgo.org/domain"
)

// RuleRepository persists domain.Rule and domain.RuleVersion rows.
type RuleRepository struct {
	db *gorm.DB
}

func (r *RuleRepository) Create(ctx context.Context, rule *domain.Rule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return common.DatabaseError("create rule", err)
	}
	return nil
}

func (r *RuleRepository) Get(ctx context.Context, id string) (*domain.Rule, error) {
	var rule domain.Rule
	if err := r.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		return nil, common.DatabaseError("get rule", err)
	}
	return &rule, nil
}

// CurrentVersion returns the rule's currently published version, if any.
func (r *RuleRepository) CurrentVersion(ctx context.Context, ruleID string) (*domain.RuleVersion, error) {
	var rv domain.RuleVersion
	err := r.db.WithContext(ctx).
		Where("rule_id = ? AND status = ?", ruleID, domain.RulePublished).
		First(&rv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, common.DatabaseError("get current rule version", err)
	}
	return &rv, nil
}

// Publish archives the rule's previously-published version (if any) and
// marks newVersion published, within a single transaction, enforcing the
// "exactly one published version" invariant.
func (r *RuleRepository) Publish(ctx context.Context, rule *domain.Rule, newVersion *domain.RuleVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.RuleVersion{}).
			Where("rule_id = ? AND status = ?", rule.ID, domain.RulePublished).
			Update("status", domain.RuleArchived).Error; err != nil {
			return common.DatabaseError("archive current rule version", err)
		}

		newVersion.Status = domain.RulePublished
		if err := tx.Save(newVersion).Error; err != nil {
			return common.DatabaseError("publish rule version", err)
		}

		rule.CurrentVersion = newVersion.Label
		if err := tx.Save(rule).Error; err != nil {
			return common.DatabaseError("update rule current_version", err)
		}
		return nil
	})
}

// WebhookRepository persists domain.Webhook rows.
type WebhookRepository struct {
	db *gorm.DB
}

func (r *WebhookRepository) Create(ctx context.Context, wh *domain.Webhook) error {
	if err := wh.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(wh).Error; err != nil {
		return common.DatabaseError("create webhook", err)
	}
	return nil
}

func (r *WebhookRepository) Get(ctx context.Context, id string) (*domain.Webhook, error) {
	var wh domain.Webhook
	if err := r.db.WithContext(ctx).First(&wh, "id = ?", id).Error; err != nil {
		return nil, common.DatabaseError("get webhook", err)
	}
	return &wh, nil
}

// ActiveForRule returns the active webhooks bound to ruleID through the
// rule_webhooks join table.
func (r *WebhookRepository) ActiveForRule(ctx context.Context, ruleID string) ([]domain.Webhook, error) {
	var webhooks []domain.Webhook
	err := r.db.WithContext(ctx).
		Joins("JOIN rule_webhooks ON rule_webhooks.webhook_id = webhooks.id").
		Where("rule_webhooks.rule_id = ? AND webhooks.is_active = ?", ruleID, true).
		Find(&webhooks).Error
	if err != nil {
		return nil, common.DatabaseError("list active webhooks for rule", err)
	}
	return webhooks, nil
}

// PushLogRepository persists domain.PushLog rows.
type PushLogRepository struct {
	db *gorm.DB
}

func (r *PushLogRepository) Create(ctx context.Context, log *domain.PushLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return common.DatabaseError("create push log", err)
	}
	return nil
}

func (r *PushLogRepository) ForJob(ctx context.Context, jobID string) ([]domain.PushLog, error) {
	var logs []domain.PushLog
	err := r.db.WithContext(ctx).
		Where("task_id = ?", jobID).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, common.DatabaseError("list push logs for job", err)
	}
	return logs, nil
}

// PipelineRepository persists domain.Pipeline and domain.PipelineExecution rows.
type PipelineRepository struct {
	db *gorm.DB
}

func (r *PipelineRepository) ForRule(ctx context.Context, ruleID string) (*domain.Pipeline, error) {
	var p domain.Pipeline
	err := r.db.WithContext(ctx).First(&p, "rule_id = ?", ruleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, common.DatabaseError("get pipeline for rule", err)
	}
	return &p, nil
}

func (r *PipelineRepository) CreateExecution(ctx context.Context, exec *domain.PipelineExecution) error {
	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		return common.DatabaseError("create pipeline execution", err)
	}
	return nil
}

func (r *PipelineRepository) UpdateExecution(ctx context.Context, exec *domain.PipelineExecution) error {
	if err := r.db.WithContext(ctx).Save(exec).Error; err != nil {
		return common.DatabaseError("update pipeline execution", err)
	}
	return nil
}

// AuditLogRepository persists domain.AuditLogEntry rows.
type AuditLogRepository struct {
	db *gorm.DB
}

func (r *AuditLogRepository) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return common.DatabaseError("create audit log entry", err)
	}
	return nil
}

func (r *AuditLogRepository) ForResource(ctx context.Context, resourceType, resourceID string) ([]domain.AuditLogEntry, error) {
	var entries []domain.AuditLogEntry
	err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, common.DatabaseError("list audit log entries", err)
	}
	return entries, nil
}
