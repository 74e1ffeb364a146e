package webhook

import (
	"context"
	"sync"
	"time"

	"idp.evalgo.org/common"
	"idp.evalgo.org/domain"
	"idp.evalgo.org/queue"
)

// DefaultRetryDelays is the fixed delay sequence a push attempt walks
// through on non-success, in order: 10s, 30s, 90s.
var DefaultRetryDelays = []time.Duration{10 * time.Second, 30 * time.Second, 90 * time.Second}

const defaultMaxRetries = 3

// TargetOutcome is one (job, webhook) dispatch outcome, uniform across
// the generic and erp-session protocols, ready to become a PushLog.
type TargetOutcome struct {
	WebhookID    string
	StatusCode   int
	ResponseBody string
	Duration     time.Duration
	Err          error
	Degraded     bool
}

// Dispatcher fans a job out to every active webhook target in parallel,
// applies the retry envelope per target, and republishes via the queue
// fabric on a schedulable retry or moves to the dead letter queue on
// exhaustion.
type Dispatcher struct {
	Fabric      *queue.Fabric
	RetryDelays []time.Duration
	MaxRetries  int
}

// NewDispatcher builds a Dispatcher with the documented retry envelope
// defaults.
func NewDispatcher(fabric *queue.Fabric) *Dispatcher {
	return &Dispatcher{Fabric: fabric, RetryDelays: DefaultRetryDelays, MaxRetries: defaultMaxRetries}
}

// DispatchAll runs attempt against every webhook concurrently and
// collects each one's outcome independently — one target's failure
// never blocks or cancels another's.
func (d *Dispatcher) DispatchAll(ctx context.Context, webhooks []domain.Webhook, attempt func(context.Context, domain.Webhook) (int, string, bool, error)) []TargetOutcome {
	outcomes := make([]TargetOutcome, len(webhooks))
	var wg sync.WaitGroup

	for i, w := range webhooks {
		wg.Add(1)
		go func(i int, w domain.Webhook) {
			defer wg.Done()
			start := time.Now()
			status, body, degraded, err := attempt(ctx, w)
			outcomes[i] = TargetOutcome{
				WebhookID:    w.ID,
				StatusCode:   status,
				ResponseBody: body,
				Duration:     time.Since(start),
				Err:          err,
				Degraded:     degraded,
			}
		}(i, w)
	}

	wg.Wait()
	return outcomes
}

// ShouldRetry decides whether a push attempt should be scheduled again:
// false for a success, false once retryCount has reached MaxRetries,
// otherwise follows RetryableStatus's 4xx-except-429 skip rule.
func (d *Dispatcher) ShouldRetry(outcome TargetOutcome, retryCount int) bool {
	if outcome.Err == nil && outcome.StatusCode >= 200 && outcome.StatusCode < 300 {
		return false
	}
	if retryCount >= d.MaxRetries {
		return false
	}
	return domain.RetryableStatus(outcome.StatusCode)
}

// RetryDelay returns the delay for the given retry attempt (0-indexed),
// clamped to the last configured delay once attempts exceed the table.
func (d *Dispatcher) RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(d.RetryDelays) {
		return d.RetryDelays[len(d.RetryDelays)-1]
	}
	return d.RetryDelays[retryCount]
}

// SchedulePush publishes (or republishes) a push-stage message for jobID
// with the given retry count (1 for the first retry), delayed per
// RetryDelay(retryCount-1) so the first retry waits RetryDelays[0].
func (d *Dispatcher) SchedulePush(jobID string, retryCount int) error {
	msg := common.StageMessage{
		JobID:      jobID,
		Stage:      common.StagePush,
		Attempt:    retryCount,
		EnqueuedAt: time.Now(),
	}
	delay := int(d.RetryDelay(retryCount - 1).Seconds())
	return d.Fabric.Publish(msg, delay)
}

// DeadLetter copies an exhausted push attempt to the DLQ for manual
// re-drive.
func (d *Dispatcher) DeadLetter(jobID, errMsg string) error {
	msg := common.StageMessage{
		JobID:      jobID,
		Stage:      common.StagePush,
		EnqueuedAt: time.Now(),
		ErrorMsg:   errMsg,
	}
	return d.Fabric.PublishDeadLetter(msg)
}

// Redrive re-queues a DLQ-captured push as a fresh attempt with
// retry_count reset to 0.
func (d *Dispatcher) Redrive(jobID string) error {
	msg := common.StageMessage{
		JobID:      jobID,
		Stage:      common.StagePush,
		Attempt:    0,
		EnqueuedAt: time.Now(),
	}
	return d.Fabric.Publish(msg, 0)
}
