// Package orchestrator drives the job state machine: the pure transition
// function, per-queue stage workers consuming the queue fabric, and the
// two external entry points (Upload, Submit) that start and adjudicate a
// job.
package orchestrator

import (
	"fmt"

	"idp.evalgo.org/domain"
)

// Event names one state-machine trigger. Transition legality is decided
// entirely by (current status, event) — Next has no side effects and no
// access to the job store.
type Event string

const (
	EventDequeued       Event = "dequeued"
	EventGatePassed     Event = "gate_passed"
	EventGateFailed     Event = "gate_failed"
	EventAuditApproved  Event = "audit_approved"
	EventAuditRejected  Event = "audit_rejected"
	EventPipelinePicked Event = "pipeline_picked"
	EventAllPushesOK    Event = "all_pushes_ok"
	EventPushExhausted  Event = "push_exhausted"
	EventStageFailed    Event = "stage_failed"
	EventRequeued       Event = "requeued"
	EventCancelled      Event = "cancelled"
	EventRedriven       Event = "redriven"
)

// Next computes the job's new status for (current, event), or an error
// if the transition is not legal from current.
func Next(current domain.JobStatus, event Event) (domain.JobStatus, error) {
	illegal := func() (domain.JobStatus, error) {
		return "", fmt.Errorf("illegal transition: event %q from status %q", event, current)
	}

	// A stage exception is terminal from any non-terminal status.
	if event == EventStageFailed {
		if isTerminal(current) {
			return illegal()
		}
		return domain.JobFailed, nil
	}

	switch current {
	case domain.JobQueued:
		switch event {
		case EventDequeued:
			return domain.JobProcessing, nil
		case EventCancelled:
			return domain.JobRejected, nil
		}
	case domain.JobProcessing:
		switch event {
		case EventGateFailed:
			return domain.JobPendingAudit, nil
		case EventGatePassed:
			return domain.JobCompleted, nil
		}
	case domain.JobPendingAudit:
		switch event {
		case EventAuditApproved:
			return domain.JobCompleted, nil
		case EventAuditRejected:
			return domain.JobRejected, nil
		}
	case domain.JobCompleted:
		if event == EventPipelinePicked {
			return domain.JobPushing, nil
		}
	case domain.JobPushing:
		switch event {
		case EventAllPushesOK:
			return domain.JobPushSuccess, nil
		case EventPushExhausted:
			return domain.JobPushFailed, nil
		}
	case domain.JobFailed, domain.JobRejected:
		if event == EventRequeued {
			return domain.JobQueued, nil
		}
	case domain.JobPushFailed:
		if event == EventRedriven {
			return domain.JobPushing, nil
		}
	}

	return illegal()
}

func isTerminal(status domain.JobStatus) bool {
	switch status {
	case domain.JobPushSuccess:
		return true
	default:
		return false
	}
}
