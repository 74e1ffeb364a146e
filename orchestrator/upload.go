package orchestrator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"idp.evalgo.org/common"
	"idp.evalgo.org/dedup"
	"idp.evalgo.org/domain"
	"idp.evalgo.org/queue"
	"idp.evalgo.org/storage"
	"idp.evalgo.org/store"
)

// UploadRequest is the uploader's input: the file bytes, its declared
// name, and the rule it must be processed against.
type UploadRequest struct {
	FileName string
	Content  io.Reader
	RuleID   string
}

// UploadDeps bundles the collaborators Upload needs. It is passed by
// value; every field is a pointer, so building the struct once at startup
// is the whole wiring cost.
type UploadDeps struct {
	Jobs    *store.JobRepository
	Rules   *store.RuleRepository
	Dedup   *dedup.Index
	Objects *storage.S3Store
	Fabric  *queue.Fabric
}

// Upload computes the uploaded file's content hash, consults the dedup
// index for (content-hash, rule-id, rule-version), and either clones the
// newest terminal job for that triple (instant completion, no queue
// message) or stores the file and enqueues it to the ocr stage.
func Upload(ctx context.Context, deps UploadDeps, req UploadRequest) (*domain.Job, error) {
	data, err := io.ReadAll(req.Content)
	if err != nil {
		return nil, common.FailedTo("read uploaded file", err)
	}
	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	version, err := deps.Rules.CurrentVersion(ctx, req.RuleID)
	if err != nil {
		return nil, common.FailedTo("load current rule version", err)
	}

	now := time.Now().UTC()
	jobID := uuid.NewString()

	priorID, hit, err := deps.Dedup.Lookup(ctx, contentHash, req.RuleID, version.Label)
	if err != nil {
		return nil, common.FailedTo("consult dedup index", err)
	}
	if hit {
		prior, err := deps.Jobs.Get(ctx, priorID)
		if err != nil {
			return nil, common.FailedTo("load prior job for instant clone", err)
		}
		job := cloneInstant(prior, jobID, now)
		if err := deps.Jobs.Create(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}

	objectKey := storage.BuildObjectKey(now, jobID, req.FileName)
	if err := deps.Objects.Put(ctx, objectKey, bytes.NewReader(data)); err != nil {
		return nil, common.FailedTo("store uploaded file", err)
	}

	job := &domain.Job{
		ID:          jobID,
		FileName:    req.FileName,
		ObjectKey:   objectKey,
		ContentHash: contentHash,
		RuleID:      req.RuleID,
		RuleVersion: version.Label,
		Status:      domain.JobQueued,
	}
	if err := deps.Jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	msg := common.StageMessage{
		JobID:      jobID,
		Stage:      common.StageOCR,
		State:      common.StageQueued,
		EnqueuedAt: now,
	}
	if err := deps.Fabric.Publish(msg, 0); err != nil {
		return nil, fmt.Errorf("publish ocr stage message: %w", err)
	}

	return job, nil
}

// cloneInstant builds the new is_instant job record per the dedup
// contract: OCR outputs, extracted fields and confidence map are copied
// verbatim; LLM accounting is zeroed since no LLM work ran; status is
// set directly to the terminal completed state with no queue message.
func cloneInstant(prior *domain.Job, newID string, now time.Time) *domain.Job {
	return &domain.Job{
		ID:            newID,
		FileName:      prior.FileName,
		ObjectKey:     prior.ObjectKey,
		ContentHash:   prior.ContentHash,
		PageCount:     prior.PageCount,
		RuleID:        prior.RuleID,
		RuleVersion:   prior.RuleVersion,
		Status:        domain.JobCompleted,
		IsInstant:     true,
		OCRText:       prior.OCRText,
		OCRStructured: prior.OCRStructured,
		ExtractedData: prior.ExtractedData,
		Confidence:    prior.Confidence,
		LLMTokenCount: 0,
		LLMCost:       0,
		StartedAt:     &now,
		CompletedAt:   &now,
	}
}
