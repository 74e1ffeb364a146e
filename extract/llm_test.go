package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	reply string
	err   error
}

func (f *fakeClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.reply, f.err
}

func TestBatchExtractor_ExtractAll(t *testing.T) {
	client := &fakeClient{reply: `{"invoice_number":"INV-001","items":["a","b"]}`}
	doc := docWithText("Invoice INV-001 contains items a and b")

	extractor := BatchExtractor{Client: client}
	fields := []FieldSpec{
		{Path: "invoice_number", Hint: "the invoice id"},
		{Path: "items", Hint: "line item names", IsArray: true},
	}
	result, err := extractor.ExtractAll(context.Background(), doc, fields)
	require.NoError(t, err)
	assert.Equal(t, "INV-001", result["invoice_number"].Value)
	assert.Greater(t, result["invoice_number"].Confidence, 70.0)
	items, ok := result["items"].Value.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestBatchExtractor_ClientError(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("breaker open")}
	extractor := BatchExtractor{Client: client}

	_, err := extractor.ExtractAll(context.Background(), docWithText("x"), []FieldSpec{{Path: "a"}})
	assert.Error(t, err)
}

func TestBatchExtractor_NoClientConfigured(t *testing.T) {
	extractor := BatchExtractor{}
	_, err := extractor.ExtractAll(context.Background(), docWithText("x"), []FieldSpec{{Path: "a"}})
	assert.Error(t, err)
}

func TestLLMStrategy_SingleField(t *testing.T) {
	client := &fakeClient{reply: `{"value":"42"}`}
	doc := docWithText("The total is 42 dollars")
	params, _ := json.Marshal(LLMParams{Hint: "total amount {\"ignored\":true}"})

	field, err := LLMStrategy{Client: client}.Extract(context.Background(), doc, false, params)
	require.NoError(t, err)
	assert.Equal(t, "42", field.Value)
}

func TestStripEmbeddedJSON(t *testing.T) {
	assert.Equal(t, "total amount", stripEmbeddedJSON(`total amount {"ignored":true}`))
	assert.Equal(t, "plain hint", stripEmbeddedJSON("plain hint"))
}

func TestLLMFieldConfidence(t *testing.T) {
	assert.Greater(t, llmFieldConfidence("the value is 42 here", "42"), 70.0)
	assert.Equal(t, 0.0, llmFieldConfidence("anything", ""))
}
