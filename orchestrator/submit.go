package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"idp.evalgo.org/clean"
	"idp.evalgo.org/common"
	"idp.evalgo.org/dedup"
	"idp.evalgo.org/domain"
	"idp.evalgo.org/queue"
	"idp.evalgo.org/store"
)

// Verdict is the auditor's decision on a pending_audit job.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// SubmitDeps bundles the collaborators Submit needs.
type SubmitDeps struct {
	Jobs   *store.JobRepository
	Fabric *queue.Fabric
	Dedup  *dedup.Index
}

// Submit applies an auditor's verdict to a pending_audit job: approve
// merges corrections into extracted_data (pinning each corrected field's
// confidence to domain.CorrectedConfidence) and drives the job to
// completed, publishing the pipeline stage message exactly as the
// automatic gate-pass path does; reject drives the job to rejected with
// no further queue activity.
func Submit(ctx context.Context, deps SubmitDeps, jobID, auditorID string, verdict Verdict, corrections map[string]interface{}) error {
	job, err := deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return common.FailedTo("load job for audit submission", err)
	}

	event := EventAuditRejected
	if verdict == VerdictApprove {
		event = EventAuditApproved
	}
	target, err := Next(job.Status, event)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = deps.Jobs.TransitionStatus(ctx, jobID, job.Status, target, func(j *domain.Job) error {
		j.AuditorID = auditorID
		j.AuditedAt = &now
		if verdict == VerdictApprove {
			if err := applyCorrections(j, corrections); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if verdict == VerdictApprove {
		if deps.Dedup != nil {
			_ = deps.Dedup.Record(ctx, job.ContentHash, job.RuleID, job.RuleVersion, jobID, now)
		}

		msg := common.StageMessage{
			JobID:      jobID,
			Stage:      common.StagePipeline,
			State:      common.StageQueued,
			EnqueuedAt: now,
		}
		if err := deps.Fabric.Publish(msg, 0); err != nil {
			return err
		}
	}
	return nil
}

// applyCorrections merges the auditor's field corrections into the job's
// extracted_data tree and pins each corrected field's confidence to 100,
// matching the S2 scenario's `confidence_scores.amount == 100` contract.
func applyCorrections(job *domain.Job, corrections map[string]interface{}) error {
	if len(corrections) == 0 {
		return nil
	}

	var extracted map[string]interface{}
	if len(job.ExtractedData) > 0 {
		if err := json.Unmarshal(job.ExtractedData, &extracted); err != nil {
			return common.ParseError("extracted_data", "json", err)
		}
	} else {
		extracted = map[string]interface{}{}
	}

	var confidence map[string]interface{}
	if len(job.Confidence) > 0 {
		if err := json.Unmarshal(job.Confidence, &confidence); err != nil {
			return common.ParseError("confidence_scores", "json", err)
		}
	} else {
		confidence = map[string]interface{}{}
	}

	for field, value := range corrections {
		clean.Set(extracted, field, value)
		clean.Set(confidence, field, float64(domain.CorrectedConfidence))
	}

	extractedRaw, err := json.Marshal(extracted)
	if err != nil {
		return common.ParseError("extracted_data", "json", err)
	}
	confidenceRaw, err := json.Marshal(confidence)
	if err != nil {
		return common.ParseError("confidence_scores", "json", err)
	}
	job.ExtractedData = extractedRaw
	job.Confidence = confidenceRaw
	return nil
}
