package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"idp.evalgo.org/common"
	"idp.evalgo.org/domain"
)

// ErrNotInExpectedStatus is returned by TransitionStatus when the job's
// current status doesn't match the expected source status — the queue's
// at-least-once delivery means this is an expected, non-fatal outcome: the
// caller should ack the message and drop it.
var ErrNotInExpectedStatus = errors.New("job not in expected status")

// JobRepository persists domain.Job rows.
type JobRepository struct {
	db *gorm.DB
}

// Create inserts a new job row.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return common.DatabaseError("create job", err)
	}
	return nil
}

// Get fetches a job by id.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, common.DatabaseError("get job", err)
	}
	return &job, nil
}

// TransitionStatus is the CAS-style status guard every worker uses
// before acting on a dequeued message: the UPDATE only applies when the
// row is still in `from`, and mutate is invoked with the freshly-locked
// row to apply any other field changes atomically with the status
// change. Returns ErrNotInExpectedStatus (not a hard error) when another
// worker already claimed the row — the caller should treat the message
// as already handled.
func (r *JobRepository) TransitionStatus(ctx context.Context, jobID string, from, to domain.JobStatus, mutate func(job *domain.Job) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.Job
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&job, "id = ? AND status = ?", jobID, from).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotInExpectedStatus
			}
			return common.DatabaseError("lock job for transition", err)
		}

		job.Status = to
		if mutate != nil {
			if err := mutate(&job); err != nil {
				return err
			}
		}

		if err := tx.Save(&job).Error; err != nil {
			return common.DatabaseError("save transitioned job", err)
		}
		return nil
	})
}

// List returns jobs in a given status, newest first, for worker polling
// or administrative inspection.
func (r *JobRepository) List(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, common.DatabaseError("list jobs", err)
	}
	return jobs, nil
}
