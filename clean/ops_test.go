package clean

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_RegexReplaceThenTrim(t *testing.T) {
	params, _ := json.Marshal(regexReplaceParams{Pattern: `,`, Replacement: ""})
	ops := []Op{
		{Type: OpRegexReplace, Params: params},
		{Type: OpTrim},
	}
	out, err := Apply(" 1,234 ", ops)
	require.NoError(t, err)
	assert.Equal(t, "1234", out)
}

func TestApply_FormatDate(t *testing.T) {
	params, _ := json.Marshal(formatDateParams{TargetFormat: "2006-01-02"})
	ops := []Op{{Type: OpFormatDate, Params: params}}

	out, err := Apply("2024/03/05", ops)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", out)
}

func TestFormatDate_TriesAllLayouts(t *testing.T) {
	assert.Equal(t, "2024-03-05", FormatDate("05-03-2024", "2006-01-02"))
	assert.Equal(t, "2024-03-05", FormatDate("2024年03月05日", "2006-01-02"))
	assert.Equal(t, "2024-03-05", FormatDate("20240305", "2006-01-02"))
}

func TestFormatDate_UnrecognizedPassesThrough(t *testing.T) {
	assert.Equal(t, "not a date", FormatDate("not a date", "2006-01-02"))
}

func TestApplyField_Broadcast(t *testing.T) {
	doc := map[string]interface{}{
		"order": map[string]interface{}{
			"line": []interface{}{
				map[string]interface{}{"qty": " 5 "},
				map[string]interface{}{"qty": " 3 "},
			},
		},
	}
	err := ApplyField(doc, "order.line.qty", []Op{{Type: OpTrim}})
	require.NoError(t, err)

	v, _ := Get(doc, "order.line.qty")
	assert.Equal(t, []interface{}{"5", "3"}, v)
}
