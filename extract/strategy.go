// Package extract implements the field-extraction strategies that run
// after OCR: regex, anchor, table and LLM-schema. Every strategy reads
// from the same merged OCR output and produces a value plus a locally
// synthesized confidence score in [0,100].
package extract

import (
	"context"
	"encoding/json"

	"idp.evalgo.org/ocr"
)

// Field is the outcome of running one strategy against one schema field
// path: the extracted value (string, or []interface{} for array/table
// schema nodes), a confidence in [0,100], and the OCR page the value was
// read from (0 when not page-specific, e.g. an LLM call spanning pages).
type Field struct {
	Value      interface{}
	Confidence float64
	SourcePage int
}

// Strategy extracts one field (or one family of fields, for llm-schema)
// from OCR output against strategy-specific parameters.
type Strategy interface {
	Extract(ctx context.Context, doc *ocr.Result, isArray bool, params json.RawMessage) (Field, error)
}

// clampConfidence keeps every synthesized score within the documented
// [0,100] range.
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
