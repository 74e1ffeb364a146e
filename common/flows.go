// Package common provides core data structures and types shared across the
// IDP worker services: structured logging, build/version helpers, small
// utility functions, and the message envelope used on the internal stage
// queues (OCR, pipeline, push).
//
// Stage Message Flow:
//
//	Orchestrator → RabbitMQ stage queue → Stage worker → Postgres status
//	transition → (optionally) next stage queue
//
// Each queue message carries just enough information to pick up a job
// without requiring the consumer to look anything up first: the job ID,
// which stage it targets, how many times it has been attempted, and
// free-form metadata the producing stage wants the consumer to see.
package common

import (
	"time"
)

// StageState represents where a single stage attempt for a job currently
// stands. This is distinct from the job's own lifecycle status (see
// domain.JobStatus) — a stage can fail and retry several times while the
// job itself stays in "processing".
//
// State Transition Rules:
//
//	StageQueued     → StageRunning (worker picks the message up)
//	StageRunning    → StageSucceeded (stage completed, move to next stage)
//	StageRunning    → StageFailed (stage errored, may be retried or routed
//	                  to the dead-letter queue depending on attempt count)
type StageState string

const (
	StageQueued    StageState = "queued"
	StageRunning   StageState = "running"
	StageSucceeded StageState = "succeeded"
	StageFailed    StageState = "failed"
)

// StageName identifies which of the three processing queues a message
// belongs to.
type StageName string

const (
	StageOCR      StageName = "ocr"
	StagePipeline StageName = "pipeline"
	StagePush     StageName = "push"
)

// StageMessage is the envelope published to a stage queue and consumed by
// the matching orchestrator.StageWorker. It intentionally carries no large
// payloads — extracted data, OCR text, and rendered webhook bodies all live
// in Postgres or object storage, keyed by JobID, so messages stay small
// enough to respect the queue's max-length and TTL limits.
type StageMessage struct {
	JobID       string                 `json:"job_id"`
	Stage       StageName              `json:"stage"`
	State       StageState             `json:"state"`
	Attempt     int                    `json:"attempt"`
	EnqueuedAt  time.Time              `json:"enqueued_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ErrorMsg    string                 `json:"error_message,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// StageTransition is a single recorded state change for a stage attempt,
// used by worker logs and the audit trail. Once created these are never
// modified.
type StageTransition struct {
	State     StageState `json:"state"`
	Timestamp time.Time  `json:"timestamp"`
	ErrorMsg  string     `json:"error_message,omitempty"`
}

// QueueConfig holds the RabbitMQ connection details and the four queue
// names the fabric declares (see queue.Fabric). Kept as a plain struct
// (not tied to viper) so it can be constructed directly in tests.
type QueueConfig struct {
	AMQPURL       string
	OCRQueue      string
	PipelineQueue string
	PushQueue     string
	DeadLetter    string
}
