package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sony/gobreaker"
	"github.com/streadway/amqp"

	"idp.evalgo.org/clean"
	"idp.evalgo.org/common"
	"idp.evalgo.org/dedup"
	"idp.evalgo.org/domain"
	"idp.evalgo.org/extract"
	"idp.evalgo.org/ocr"
	"idp.evalgo.org/queue"
	"idp.evalgo.org/sandbox"
	"idp.evalgo.org/storage"
	"idp.evalgo.org/store"
	"idp.evalgo.org/validate"
	"idp.evalgo.org/webhook"
)

// Handler processes one dequeued job for a single stage. attempt carries
// the message's StageMessage.Attempt counter verbatim (0 on first
// delivery); only the push-stage handler reads it, to drive the webhook
// retry envelope, but every handler takes it so StageWorker.handle has a
// single call shape. A nil return acks the message;
// store.ErrNotInExpectedStatus also acks (another worker already
// claimed the row, or a stale redelivery); any other error nacks with
// requeue=false, the message is lost to the queue but the job itself is
// left for requeue/redrive via the orchestrator's own event path.
type Handler func(ctx context.Context, jobID string, attempt int) error

// StageWorker consumes one of the three stage queues, generalizing the
// teacher's worker.Pool/worker.Worker pair (one queue name, one
// processor) into a single type parameterized by Stage and Handler; the
// CAS-style store.JobRepository.TransitionStatus embedded inside each
// Handler is the synchronization point, not the worker loop itself.
type StageWorker struct {
	Stage       common.StageName
	Fabric      *queue.Fabric
	Handler     Handler
	Logger      *common.ContextLogger
	ConsumerTag string

	stopChan chan struct{}
}

// NewStageWorker builds a worker bound to stage, ready for Start.
func NewStageWorker(stage common.StageName, fabric *queue.Fabric, handler Handler, logger *common.ContextLogger) *StageWorker {
	return &StageWorker{
		Stage:       stage,
		Fabric:      fabric,
		Handler:     handler,
		Logger:      logger,
		ConsumerTag: fmt.Sprintf("idp-%s-worker", stage),
		stopChan:    make(chan struct{}),
	}
}

// Start consumes deliveries from the stage queue until Stop is called or
// ctx is cancelled. Runs in the caller's goroutine; callers that want a
// background worker should call `go worker.Start(ctx)`.
func (w *StageWorker) Start(ctx context.Context) error {
	deliveries, err := w.Fabric.Consume(w.Stage, w.ConsumerTag)
	if err != nil {
		return fmt.Errorf("consume %s queue: %w", w.Stage, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopChan:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(ctx, d)
		}
	}
}

// Stop signals Start to return after its current delivery finishes.
func (w *StageWorker) Stop() {
	close(w.stopChan)
}

func (w *StageWorker) handle(ctx context.Context, d amqp.Delivery) {
	var msg common.StageMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		if w.Logger != nil {
			w.Logger.WithError(err).Error("malformed stage message, dropping")
		}
		_ = d.Nack(false, false)
		return
	}

	err := w.Handler(ctx, msg.JobID, msg.Attempt)
	switch {
	case err == nil, errors.Is(err, store.ErrNotInExpectedStatus):
		_ = d.Ack(false)
	default:
		if w.Logger != nil {
			w.Logger.WithError(err).WithField("job_id", msg.JobID).Error("stage handler failed")
		}
		_ = d.Nack(false, false)
	}
}

// OCRDeps bundles the collaborators the ocr-stage handler needs.
type OCRDeps struct {
	Jobs       *store.JobRepository
	Rules      *store.RuleRepository
	Objects    *storage.S3Store
	Dispatcher *ocr.Dispatcher
	Strategies map[string]extract.Strategy // keyed by ExtractionStrategyConfig.Strategy, excluding "llm_schema"
	LLM        extract.Client
	Fabric     *queue.Fabric
	Dedup      *dedup.Index
	WorkDir    string // scratch directory for downloaded source files
	Logger     *common.ContextLogger
}

// OCRHandler returns the ocr-stage Handler: download, recognize, run the
// full extract→enhance→clean→validate→gate pipeline, and transition the
// job to pending_audit or completed (publishing the pipeline message on
// gate pass).
func OCRHandler(deps OCRDeps) Handler {
	return func(ctx context.Context, jobID string, _ int) error {
		job, err := deps.Jobs.Get(ctx, jobID)
		if err != nil {
			return common.FailedTo("load job", err)
		}

		if err := deps.Jobs.TransitionStatus(ctx, jobID, domain.JobQueued, domain.JobProcessing, func(j *domain.Job) error {
			now := time.Now().UTC()
			j.StartedAt = &now
			return nil
		}); err != nil {
			return err
		}

		rv, err := deps.Rules.CurrentVersion(ctx, job.RuleID)
		if err != nil || rv == nil {
			return failJob(ctx, deps.Jobs, jobID, domain.JobProcessing, fmt.Errorf("no published rule version for %s", job.RuleID))
		}
		cfg, err := rv.Decode()
		if err != nil {
			return failJob(ctx, deps.Jobs, jobID, domain.JobProcessing, err)
		}

		localPath := fmt.Sprintf("%s/%s", deps.WorkDir, jobID)
		if err := deps.Objects.GetToFile(ctx, job.ObjectKey, localPath); err != nil {
			return failJob(ctx, deps.Jobs, jobID, domain.JobProcessing, err)
		}
		defer os.Remove(localPath)

		doc, err := deps.Dispatcher.Recognize(ctx, []string{localPath})
		if err != nil {
			return failJob(ctx, deps.Jobs, jobID, domain.JobProcessing, err)
		}

		extracted, confidence, reasons, err := runExtractionPipeline(ctx, doc, cfg, deps.Strategies, deps.LLM, deps.Logger)
		if err != nil {
			return failJob(ctx, deps.Jobs, jobID, domain.JobProcessing, err)
		}

		gateFailed := len(reasons) > 0
		event := EventGatePassed
		if gateFailed {
			event = EventGateFailed
		}
		target, err := Next(domain.JobProcessing, event)
		if err != nil {
			return err
		}

		extractedRaw, err := json.Marshal(extracted)
		if err != nil {
			return err
		}
		confidenceRaw, err := json.Marshal(confidence)
		if err != nil {
			return err
		}

		structuredRaw, err := json.Marshal(doc.Pages)
		if err != nil {
			return err
		}

		completedAt := time.Now().UTC()
		err = deps.Jobs.TransitionStatus(ctx, jobID, domain.JobProcessing, target, func(j *domain.Job) error {
			j.ExtractedData = extractedRaw
			j.Confidence = confidenceRaw
			j.OCRText = doc.FullText
			j.OCRStructured = structuredRaw
			j.PageCount = len(doc.Pages)
			if gateFailed {
				j.AuditReasons = reasons
			}
			if !gateFailed {
				j.CompletedAt = &completedAt
			}
			return nil
		})
		if err != nil {
			return err
		}

		if !gateFailed {
			if deps.Dedup != nil {
				if err := deps.Dedup.Record(ctx, job.ContentHash, job.RuleID, job.RuleVersion, jobID, completedAt); err != nil && deps.Logger != nil {
					deps.Logger.WithError(err).WithField("job_id", jobID).Warn("failed to record dedup entry")
				}
			}
			return publishStage(deps.Fabric, common.StagePipeline, jobID)
		}
		return nil
	}
}

// runExtractionPipeline runs Extract → Enhance → Clean → Validate → Gate
// for every field the rule version declares, per §4.4's fixed pipeline
// order. Enhancement reissues one LLMStrategy call per field still below
// the rule's enhancement ConfidenceThreshold after the initial pass, exactly as the contract
// requires (one call per flagged field, not a second batch call). Vision
// consistency-check is NOT implemented: it requires a vision-capable
// completion client, and no such client exists anywhere in this stack
// (extract.Client and llm.Client are both text-only chat completions) —
// see DESIGN.md's Open Questions for the scope decision.
func runExtractionPipeline(ctx context.Context, doc *ocr.Result, cfg *domain.RuleVersionConfig, strategies map[string]extract.Strategy, llmClient extract.Client, logger *common.ContextLogger) (map[string]interface{}, map[string]interface{}, []domain.AuditReason, error) {
	extracted := map[string]interface{}{}
	confidence := map[string]interface{}{}

	var llmFields []extract.FieldSpec
	for path, strategyCfg := range cfg.Extraction {
		if strategyCfg.Strategy == "llm_schema" {
			var p extract.LLMParams
			_ = json.Unmarshal(strategyCfg.Params, &p)
			llmFields = append(llmFields, extract.FieldSpec{
				Path:    path,
				Hint:    p.Hint,
				IsArray: isArrayPath(cfg.Schema, path),
			})
			continue
		}
		strategy, ok := strategies[strategyCfg.Strategy]
		if !ok {
			return nil, nil, nil, fmt.Errorf("no extraction strategy registered for %q", strategyCfg.Strategy)
		}
		field, err := strategy.Extract(ctx, doc, isArrayPath(cfg.Schema, path), strategyCfg.Params)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("extract field %s: %w", path, err)
		}
		clean.Set(extracted, path, field.Value)
		clean.Set(confidence, path, field.Confidence)
	}

	if len(llmFields) > 0 && llmClient != nil {
		batch := extract.BatchExtractor{Client: llmClient}
		results, err := batch.ExtractAll(ctx, doc, llmFields)
		if err != nil {
			if !errors.Is(err, gobreaker.ErrOpenState) {
				return nil, nil, nil, fmt.Errorf("batch llm extraction: %w", err)
			}
			if logger != nil {
				logger.WithError(err).Warn("llm circuit breaker open, degrading to ocr-only extraction")
			}
			results = nil
		}
		for path, field := range results {
			clean.Set(extracted, path, field.Value)
			clean.Set(confidence, path, field.Confidence)
		}
	}

	if cfg.Enhance.Enabled && llmClient != nil {
		enhancer := extract.LLMStrategy{Client: llmClient}
		for path, strategyCfg := range cfg.Extraction {
			val, ok := clean.Get(confidence, path)
			score, isFloat := val.(float64)
			if !ok || !isFloat || score >= float64(cfg.Enhance.ConfidenceThreshold) {
				continue
			}
			hint := fieldHint(strategyCfg)
			params, err := json.Marshal(extract.LLMParams{Hint: hint})
			if err != nil {
				continue
			}
			field, err := enhancer.Extract(ctx, doc, isArrayPath(cfg.Schema, path), params)
			if err != nil {
				if logger != nil {
					logger.WithError(err).WithField("field", path).Warn("enhancement pass failed, keeping original extraction")
				}
				continue
			}
			if field.Confidence <= score {
				continue
			}
			clean.Set(extracted, path, field.Value)
			clean.Set(confidence, path, field.Confidence)
		}
	}

	for path, fv := range cfg.Validation {
		if err := clean.ApplyField(extracted, path, decodeOps(fv.CleaningOps)); err != nil {
			return nil, nil, nil, fmt.Errorf("clean field %s: %w", path, err)
		}
	}

	var reasons []domain.AuditReason
	for path, fv := range cfg.Validation {
		predicates := decodePredicates(path, fv.Predicates)
		failures, err := validate.Evaluate(extracted, predicates, validate.GojaRunner{})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("validate field %s: %w", path, err)
		}
		for _, f := range failures {
			reasons = append(reasons, domain.AuditReason{Field: f.Field, Code: "validation_failed", Reason: f.Reason})
		}
	}

	for path := range cfg.Extraction {
		val, ok := clean.Get(confidence, path)
		score, isFloat := val.(float64)
		if !ok || !isFloat {
			continue
		}
		threshold := gateThreshold(cfg.Schema, path, cfg)
		if score < float64(threshold) {
			reasons = append(reasons, domain.AuditReason{
				Field:  path,
				Code:   "confidence_low",
				Reason: fmt.Sprintf("confidence %.0f below threshold %d", score, threshold),
			})
		}
	}

	return extracted, confidence, reasons, nil
}

// fieldHint recovers the operator's free-text hint for the enhancement
// pass: llm_schema fields carry one in their own params, every other
// strategy has none so the enhancement call runs with an empty hint.
func fieldHint(cfg domain.ExtractionStrategyConfig) string {
	if cfg.Strategy == "llm_schema" {
		var p extract.LLMParams
		if err := json.Unmarshal(cfg.Params, &p); err == nil && p.Hint != "" {
			return p.Hint
		}
	}
	return ""
}

func decodeOps(raw []json.RawMessage) []clean.Op {
	ops := make([]clean.Op, 0, len(raw))
	for _, r := range raw {
		var op clean.Op
		if err := json.Unmarshal(r, &op); err == nil {
			ops = append(ops, op)
		}
	}
	return ops
}

func decodePredicates(field string, raw []json.RawMessage) []validate.Predicate {
	predicates := make([]validate.Predicate, 0, len(raw))
	for _, r := range raw {
		var p validate.Predicate
		if err := json.Unmarshal(r, &p); err == nil {
			if p.Field == "" {
				p.Field = field
			}
			predicates = append(predicates, p)
		}
	}
	return predicates
}

func failJob(ctx context.Context, jobs *store.JobRepository, jobID string, from domain.JobStatus, cause error) error {
	target, nextErr := Next(from, EventStageFailed)
	if nextErr != nil {
		return nextErr
	}
	_ = jobs.TransitionStatus(ctx, jobID, from, target, func(j *domain.Job) error {
		j.LastError = cause.Error()
		return nil
	})
	return cause
}

func publishStage(fabric *queue.Fabric, stage common.StageName, jobID string) error {
	return fabric.Publish(common.StageMessage{
		JobID:      jobID,
		Stage:      stage,
		State:      common.StageQueued,
		EnqueuedAt: time.Now().UTC(),
	}, 0)
}

// PipelineDeps bundles the collaborators the pipeline-stage handler
// needs.
type PipelineDeps struct {
	Jobs      *store.JobRepository
	Pipelines *store.PipelineRepository
	Runtime   *sandbox.Runtime
	Fabric    *queue.Fabric
}

// PipelineHandler returns the pipeline-stage Handler: runs the rule's
// bound script (if any) through the sandbox, records a PipelineExecution,
// and always forwards to push — a script's sole effect is a possible
// mutation of extracted_data plus the recorded execution trail, per
// §4.5's "transformation, not a gate" contract.
func PipelineHandler(deps PipelineDeps) Handler {
	return func(ctx context.Context, jobID string, _ int) error {
		job, err := deps.Jobs.Get(ctx, jobID)
		if err != nil {
			return common.FailedTo("load job", err)
		}

		pushingStatus, err := Next(domain.JobCompleted, EventPipelinePicked)
		if err != nil {
			return err
		}
		if err := deps.Jobs.TransitionStatus(ctx, jobID, domain.JobCompleted, pushingStatus, nil); err != nil {
			return err
		}

		pipeline, err := deps.Pipelines.ForRule(ctx, job.RuleID)
		if err != nil {
			return err
		}
		if pipeline == nil || pipeline.Status != domain.PipelineActive {
			return publishStage(deps.Fabric, common.StagePush, jobID)
		}

		input := sandbox.Input{
			TaskID:        jobID,
			ExtractedData: rawOrNull(job.ExtractedData),
			OCRText:       job.OCRText,
		}
		start := time.Now().UTC()
		out, runErr := deps.Runtime.Execute(ctx, pipeline.CacheKey(), pipeline.ScriptContent, input, nil)
		duration := time.Since(start)

		exec := &domain.PipelineExecution{
			ID:         jobID + ":" + pipeline.ID,
			PipelineID: pipeline.ID,
			JobID:      jobID,
			RetryCount: 0,
			DurationMS: int(duration.Milliseconds()),
			StartedAt:  &start,
		}
		now := time.Now().UTC()
		exec.CompletedAt = &now

		if runErr != nil || out == nil || !out.Success {
			exec.Status = domain.ExecutionFailed
			if runErr != nil {
				exec.ErrorMessage = runErr.Error()
			} else if out != nil {
				exec.ErrorMessage = out.ErrorMessage
			}
			_ = deps.Pipelines.CreateExecution(ctx, exec)
			return publishStage(deps.Fabric, common.StagePush, jobID)
		}

		exec.Status = domain.ExecutionSuccess
		outputRaw, err := json.Marshal(out.OutputData)
		if err == nil {
			exec.OutputData = outputRaw
		}
		if err := deps.Pipelines.CreateExecution(ctx, exec); err != nil {
			return err
		}

		if len(exec.OutputData) > 0 {
			if err := deps.Jobs.TransitionStatus(ctx, jobID, domain.JobPushing, domain.JobPushing, func(j *domain.Job) error {
				j.ExtractedData = exec.OutputData
				return nil
			}); err != nil {
				return err
			}
		}

		return publishStage(deps.Fabric, common.StagePush, jobID)
	}
}

func rawOrNull(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	var v interface{}
	_ = json.Unmarshal(raw, &v)
	return v
}

// PushDeps bundles the collaborators the push-stage handler needs.
type PushDeps struct {
	Jobs       *store.JobRepository
	Webhooks   *store.WebhookRepository
	PushLogs   *store.PushLogRepository
	Objects    *storage.S3Store
	Dispatcher *webhook.Dispatcher
	Generic    *webhook.GenericTarget
	ERPSession *webhook.ERPSessionTarget
	Dedup      *dedup.Index
}

// PushHandler returns the push-stage Handler: dispatches the job's
// extracted data to every active webhook bound to its rule, records a
// PushLog per attempt, and drives the job to push_success when every
// target accepted, or schedules a delayed retry / DLQ capture per
// §4.6's retry envelope when any target is outstanding.
func PushHandler(deps PushDeps) Handler {
	return func(ctx context.Context, jobID string, attempt int) error {
		job, err := deps.Jobs.Get(ctx, jobID)
		if err != nil {
			return common.FailedTo("load job", err)
		}

		webhooks, err := deps.Webhooks.ActiveForRule(ctx, job.RuleID)
		if err != nil {
			return err
		}
		if len(webhooks) == 0 {
			return finishPush(ctx, deps, job, true)
		}

		fileURL := ""
		if url, err := deps.Objects.PresignGET(ctx, job.ObjectKey, time.Hour); err == nil {
			fileURL = url
		}
		vars := webhook.RenderVars{TaskID: jobID, ResultJSON: rawOrNull(job.ExtractedData), FileURL: fileURL}

		outcomes := deps.Dispatcher.DispatchAll(ctx, webhooks, func(ctx context.Context, target domain.Webhook) (int, string, bool, error) {
			switch target.Type {
			case domain.WebhookERPSession:
				var kcfg domain.KingdeeConfig
				if err := json.Unmarshal(target.KingdeeConfig, &kcfg); err != nil {
					return 0, "", false, err
				}
				if err := deps.ERPSession.Login(ctx, &kcfg); err != nil {
					return 0, "", false, err
				}
				payload, _ := vars.ResultJSON.(map[string]interface{})
				result, err := deps.ERPSession.SmartSave(ctx, &kcfg, payload)
				if err != nil {
					return 0, "", false, err
				}
				return result.StatusCode, result.ResponseBody, result.Degraded, nil
			default:
				result, err := deps.Generic.Dispatch(ctx, &target, vars)
				if err != nil {
					return 0, "", false, err
				}
				return result.StatusCode, result.ResponseBody, false, nil
			}
		})

		allOK := true
		anyRetry := false
		for _, o := range outcomes {
			log := &domain.PushLog{JobID: jobID, WebhookID: o.WebhookID, HTTPStatus: o.StatusCode, ResponseBody: o.ResponseBody, DurationMS: int(o.Duration.Milliseconds()), RetryCount: attempt}
			if o.Err != nil {
				log.ErrorMessage = o.Err.Error()
			}
			_ = deps.PushLogs.Create(ctx, log)

			if o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300 {
				continue
			}
			allOK = false
			if deps.Dispatcher.ShouldRetry(o, attempt) {
				anyRetry = true
				if err := deps.Dispatcher.SchedulePush(jobID, attempt+1); err != nil {
					return err
				}
			} else {
				_ = deps.Dispatcher.DeadLetter(jobID, o.ResponseBody)
			}
		}

		if allOK {
			return finishPush(ctx, deps, job, true)
		}
		if anyRetry {
			// A retry was scheduled on the push queue; the job stays in
			// pushing until that redelivery resolves it one way or the
			// other, so no status transition happens here.
			return nil
		}
		return finishPush(ctx, deps, job, false)
	}
}

// finishPush transitions jobID out of pushing and, on success, records
// the (content-hash, rule-id, rule-version) triple in the dedup index so
// future uploads of the same document against the same rule version can
// be served instantly per §4.2 — push_success is a terminal status the
// dedup contract names alongside completed.
func finishPush(ctx context.Context, deps PushDeps, job *domain.Job, ok bool) error {
	if err := transitionPushResult(ctx, deps.Jobs, job.ID, ok); err != nil {
		return err
	}
	if ok && deps.Dedup != nil {
		_ = deps.Dedup.Record(ctx, job.ContentHash, job.RuleID, job.RuleVersion, job.ID, time.Now().UTC())
	}
	return nil
}

func transitionPushResult(ctx context.Context, jobs *store.JobRepository, jobID string, ok bool) error {
	event := EventPushExhausted
	if ok {
		event = EventAllPushesOK
	}
	target, err := Next(domain.JobPushing, event)
	if err != nil {
		return err
	}
	return jobs.TransitionStatus(ctx, jobID, domain.JobPushing, target, func(j *domain.Job) error {
		if ok {
			now := time.Now().UTC()
			j.CompletedAt = &now
		}
		return nil
	})
}
