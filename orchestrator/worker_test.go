package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idp.evalgo.org/common"
	"idp.evalgo.org/domain"
	"idp.evalgo.org/extract"
	"idp.evalgo.org/ocr"
	"idp.evalgo.org/store"
)

// fakeAcknowledger records which of Ack/Nack/Reject fired, standing in
// for the broker-side delivery tag bookkeeping amqp.Channel normally
// owns.
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error { f.acked = true; return nil }
func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}
func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error { return nil }

func deliveryFor(t *testing.T, jobID string, ack *fakeAcknowledger) amqp.Delivery {
	t.Helper()
	msg := common.StageMessage{JobID: jobID, Stage: common.StageOCR, State: common.StageQueued}
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body}
}

func TestStageWorkerHandle_AcksOnSuccess(t *testing.T) {
	ack := &fakeAcknowledger{}
	w := &StageWorker{Handler: func(ctx context.Context, jobID string, attempt int) error {
		assert.Equal(t, "job-1", jobID)
		return nil
	}}
	w.handle(context.Background(), deliveryFor(t, "job-1", ack))
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestStageWorkerHandle_AcksOnStaleTransition(t *testing.T) {
	ack := &fakeAcknowledger{}
	w := &StageWorker{Handler: func(ctx context.Context, jobID string, attempt int) error {
		return store.ErrNotInExpectedStatus
	}}
	w.handle(context.Background(), deliveryFor(t, "job-1", ack))
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestStageWorkerHandle_NacksOnHandlerError(t *testing.T) {
	ack := &fakeAcknowledger{}
	w := &StageWorker{Handler: func(ctx context.Context, jobID string, attempt int) error {
		return fmt.Errorf("boom")
	}}
	w.handle(context.Background(), deliveryFor(t, "job-1", ack))
	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestStageWorkerHandle_NacksOnMalformedBody(t *testing.T) {
	ack := &fakeAcknowledger{}
	w := &StageWorker{}
	w.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("not json")})
	assert.True(t, ack.nacked)
	assert.False(t, ack.acked)
}

// fakeRegexStrategy is a minimal extract.Strategy stand-in: returns a
// fixed value/confidence regardless of input, so the pipeline test can
// drive it deterministically.
type fakeRegexStrategy struct {
	value      string
	confidence float64
}

func (f fakeRegexStrategy) Extract(ctx context.Context, doc *ocr.Result, isArray bool, params json.RawMessage) (extract.Field, error) {
	return extract.Field{Value: f.value, Confidence: f.confidence}, nil
}

func docWithText(text string) *ocr.Result {
	return &ocr.Result{FullText: text, Pages: []ocr.Page{{Number: 1, Text: text, Confidence: 0.9}}}
}

func ruleConfigFixture(threshold *int) *domain.RuleVersionConfig {
	return &domain.RuleVersionConfig{
		Schema: &domain.SchemaNode{
			Kind: domain.SchemaObject,
			Children: map[string]*domain.SchemaNode{
				"amount": {Kind: domain.SchemaField, Type: "string", ConfidenceThreshold: threshold},
			},
		},
		Extraction: map[string]domain.ExtractionStrategyConfig{
			"amount": {Strategy: "regex"},
		},
		Validation: map[string]domain.FieldValidationConfig{
			"amount": {
				Predicates: []json.RawMessage{
					mustMarshal(map[string]interface{}{"type": "not_empty"}),
				},
			},
		},
	}
}

func mustMarshal(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

func TestRunExtractionPipeline_GatePassesAboveThreshold(t *testing.T) {
	threshold := 50
	cfg := ruleConfigFixture(&threshold)
	strategies := map[string]extract.Strategy{"regex": fakeRegexStrategy{value: "100.00", confidence: 95}}

	extracted, confidence, reasons, err := runExtractionPipeline(context.Background(), docWithText("Total: 100.00"), cfg, strategies, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, reasons)
	assert.Equal(t, "100.00", extracted["amount"])
	assert.Equal(t, 95.0, confidence["amount"])
}

func TestRunExtractionPipeline_GateFailsBelowThreshold(t *testing.T) {
	threshold := 90
	cfg := ruleConfigFixture(&threshold)
	strategies := map[string]extract.Strategy{"regex": fakeRegexStrategy{value: "100.00", confidence: 40}}

	_, _, reasons, err := runExtractionPipeline(context.Background(), docWithText("Total: 100.00"), cfg, strategies, nil, nil)
	require.NoError(t, err)
	require.Len(t, reasons, 1)
	assert.Equal(t, "confidence_low", reasons[0].Code)
	assert.Equal(t, "amount", reasons[0].Field)
}

func TestRunExtractionPipeline_ValidationFailureAddsReason(t *testing.T) {
	threshold := 10
	cfg := ruleConfigFixture(&threshold)
	strategies := map[string]extract.Strategy{"regex": fakeRegexStrategy{value: "", confidence: 99}}

	_, _, reasons, err := runExtractionPipeline(context.Background(), docWithText(""), cfg, strategies, nil, nil)
	require.NoError(t, err)
	require.Len(t, reasons, 1)
	assert.Equal(t, "validation_failed", reasons[0].Code)
}

type fakeLLMClient struct {
	reply string
	err   error
}

func (f *fakeLLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.reply, f.err
}

func TestRunExtractionPipeline_EnhancementReissuesLowConfidenceField(t *testing.T) {
	threshold := 60
	cfg := ruleConfigFixture(&threshold)
	cfg.Enhance = domain.EnhancementConfig{Enabled: true, ConfidenceThreshold: 80}
	strategies := map[string]extract.Strategy{"regex": fakeRegexStrategy{value: "1OO.OO", confidence: 50}}
	llm := &fakeLLMClient{reply: `{"value":"100.00"}`}

	extracted, confidence, reasons, err := runExtractionPipeline(context.Background(), docWithText("Total: 100.00"), cfg, strategies, llm, nil)
	require.NoError(t, err)
	assert.Empty(t, reasons)
	assert.Equal(t, "100.00", extracted["amount"])
	assert.Greater(t, confidence["amount"].(float64), 60.0)
}

func TestRunExtractionPipeline_EnhancementSkippedWhenDisabled(t *testing.T) {
	threshold := 10
	cfg := ruleConfigFixture(&threshold)
	strategies := map[string]extract.Strategy{"regex": fakeRegexStrategy{value: "100.00", confidence: 50}}
	llm := &fakeLLMClient{reply: `{"value":"999.99"}`}

	extracted, _, _, err := runExtractionPipeline(context.Background(), docWithText("Total: 100.00"), cfg, strategies, llm, nil)
	require.NoError(t, err)
	assert.Equal(t, "100.00", extracted["amount"])
}

func TestRunExtractionPipeline_UnknownStrategyErrors(t *testing.T) {
	cfg := &domain.RuleVersionConfig{
		Extraction: map[string]domain.ExtractionStrategyConfig{"amount": {Strategy: "missing"}},
	}
	_, _, _, err := runExtractionPipeline(context.Background(), docWithText("x"), cfg, map[string]extract.Strategy{}, nil, nil)
	assert.Error(t, err)
}

func TestRawOrNull(t *testing.T) {
	assert.Equal(t, map[string]interface{}{}, rawOrNull(nil))
	v := rawOrNull(json.RawMessage(`{"a":1}`))
	m, ok := v.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1.0, m["a"])
}

func TestDecodeOpsAndPredicates_SkipMalformed(t *testing.T) {
	ops := decodeOps([]json.RawMessage{[]byte(`{"type":"trim"}`), []byte(`not json`)})
	assert.Len(t, ops, 1)

	predicates := decodePredicates("amount", []json.RawMessage{[]byte(`{"type":"required"}`), []byte(`bad`)})
	require.Len(t, predicates, 1)
	assert.Equal(t, "amount", predicates[0].Field)
}
