package extract

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnchorStrategy_SubstringWithEndMarker(t *testing.T) {
	doc := docWithText("Total Amount: 1234.56\nNext line")
	params, _ := json.Marshal(AnchorParams{AnchorText: "Total Amount:", MaxDistance: 50, EndMarker: `\n`})

	field, err := AnchorStrategy{}.Extract(context.Background(), doc, false, params)
	require.NoError(t, err)
	assert.Equal(t, "1234.56", field.Value)
}

func TestAnchorStrategy_MaxDistanceBounds(t *testing.T) {
	doc := docWithText("Ref: ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	params, _ := json.Marshal(AnchorParams{AnchorText: "Ref:", MaxDistance: 5})

	field, err := AnchorStrategy{}.Extract(context.Background(), doc, false, params)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", field.Value)
}

func TestAnchorStrategy_RegexAnchorArray(t *testing.T) {
	doc := docWithText("Code: A1 Code: B2 Code: C3")
	params, _ := json.Marshal(AnchorParams{AnchorText: `Code:\s*`, Regex: true, MaxDistance: 2})

	field, err := AnchorStrategy{}.Extract(context.Background(), doc, true, params)
	require.NoError(t, err)
	values, ok := field.Value.([]interface{})
	require.True(t, ok)
	assert.Len(t, values, 3)
}

func TestAnchorStrategy_NotFound(t *testing.T) {
	doc := docWithText("nothing relevant")
	params, _ := json.Marshal(AnchorParams{AnchorText: "Missing:"})

	field, err := AnchorStrategy{}.Extract(context.Background(), doc, false, params)
	require.NoError(t, err)
	assert.Equal(t, "", field.Value)
}
