package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaNode_Threshold(t *testing.T) {
	var n *SchemaNode
	assert.Equal(t, 80, n.Threshold(80))

	threshold := 60
	n = &SchemaNode{ConfidenceThreshold: &threshold}
	assert.Equal(t, 60, n.Threshold(80))

	n = &SchemaNode{}
	assert.Equal(t, 80, n.Threshold(80))
}

func TestNextLabel(t *testing.T) {
	label, err := NextLabel("")
	assert.NoError(t, err)
	assert.Equal(t, "V1.0", label)

	label, err = NextLabel("V1.0")
	assert.NoError(t, err)
	assert.Equal(t, "V1.1", label)

	label, err = NextLabel("V2.7")
	assert.NoError(t, err)
	assert.Equal(t, "V2.8", label)

	_, err = NextLabel("garbage")
	assert.Error(t, err)
}

func TestRuleVersion_EncodeDecodeRoundTrip(t *testing.T) {
	cfg := &RuleVersionConfig{
		Schema: &SchemaNode{
			Kind: SchemaObject,
			Children: map[string]*SchemaNode{
				"invoice_number": {Kind: SchemaField, Type: "string", Required: true},
			},
		},
		Extraction: map[string]ExtractionStrategyConfig{
			"invoice_number": {Strategy: "regex", Params: json.RawMessage(`{"pattern":"INV-\\d+"}`)},
		},
		Validation: map[string]FieldValidationConfig{},
		Enhance:    EnhancementConfig{Enabled: true, ConfidenceThreshold: 70},
	}

	rv := &RuleVersion{}
	assert.NoError(t, rv.Encode(cfg))

	decoded, err := rv.Decode()
	assert.NoError(t, err)
	assert.Equal(t, "regex", decoded.Extraction["invoice_number"].Strategy)
	assert.True(t, decoded.Enhance.Enabled)
	assert.Equal(t, 70, decoded.Enhance.ConfidenceThreshold)
	assert.Equal(t, SchemaObject, decoded.Schema.Kind)
}
