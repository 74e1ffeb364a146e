package extract

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"idp.evalgo.org/ocr"
)

func docWithText(text string) *ocr.Result {
	return &ocr.Result{
		FullText: text,
		Pages: []ocr.Page{
			{Number: 1, Text: text, Confidence: 0.9, Boxes: []ocr.TextBox{{Text: text, Confidence: 0.9}}},
		},
	}
}

func TestRegexStrategy_FirstMatch(t *testing.T) {
	doc := docWithText("Invoice: INV-001 Total: 42")
	params, _ := json.Marshal(RegexParams{Pattern: `INV-\d+`, MatchMode: MatchFirst})

	field, err := RegexStrategy{}.Extract(context.Background(), doc, false, params)
	require.NoError(t, err)
	assert.Equal(t, "INV-001", field.Value)
	assert.Greater(t, field.Confidence, 0.0)
}

func TestRegexStrategy_MatchAll_Array(t *testing.T) {
	doc := docWithText("INV-001 INV-002 INV-003")
	params, _ := json.Marshal(RegexParams{Pattern: `INV-\d+`, MatchMode: MatchAll})

	field, err := RegexStrategy{}.Extract(context.Background(), doc, true, params)
	require.NoError(t, err)
	values, ok := field.Value.([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"INV-001", "INV-002", "INV-003"}, values)
}

func TestRegexStrategy_CaptureGroup(t *testing.T) {
	doc := docWithText("Amount: USD 1234")
	params, _ := json.Marshal(RegexParams{Pattern: `USD (\d+)`, CaptureGroup: 1})

	field, err := RegexStrategy{}.Extract(context.Background(), doc, false, params)
	require.NoError(t, err)
	assert.Equal(t, "1234", field.Value)
}

func TestRegexStrategy_NoMatch(t *testing.T) {
	doc := docWithText("nothing here")
	params, _ := json.Marshal(RegexParams{Pattern: `INV-\d+`})

	field, err := RegexStrategy{}.Extract(context.Background(), doc, false, params)
	require.NoError(t, err)
	assert.Equal(t, "", field.Value)
	assert.Equal(t, 0.0, field.Confidence)
}
