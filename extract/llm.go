package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"idp.evalgo.org/common"
	"idp.evalgo.org/ocr"
)

// instructionSet is the fixed instruction prefix sent with every
// LLM-schema request: find in document, empty string when absent, arrays
// for array fields, preserve original wording.
const instructionSet = "Find each requested field's value in the document text. " +
	"Use an empty string when a field is absent. " +
	"Return arrays for array fields. " +
	"Preserve the original wording exactly as it appears in the document."

// Client is the subset of an OpenAI-compatible chat client the extraction
// engine needs: a single completion call guarded by the caller's circuit
// breaker. Defined here so extract has no import-time dependency on the
// llm package's HTTP/breaker plumbing.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// FieldSpec describes one LLM-bound schema field: its path, the
// operator's hint (prompt snippet, stripped of any embedded JSON), and
// whether the schema node is an array.
type FieldSpec struct {
	Path    string
	Hint    string
	IsArray bool
}

// LLMParams configures the LLM-schema strategy for a single field when
// called outside the batch path (the enhancement second pass issues one
// call per low-confidence field, reusing the operator's hint).
type LLMParams struct {
	Hint string `json:"hint"`
}

// LLMStrategy extracts a single field via one LLM call. The initial
// extraction pass instead uses BatchExtractor to cover every LLM-bound
// field in one request; this type backs the enhancement second pass,
// which the contract requires to issue one call per flagged field.
type LLMStrategy struct {
	Client Client
}

func (s LLMStrategy) Extract(ctx context.Context, doc *ocr.Result, isArray bool, raw json.RawMessage) (Field, error) {
	if s.Client == nil {
		return Field{}, common.FailedTo("extract via llm", fmt.Errorf("no llm client configured"))
	}
	var p LLMParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return Field{}, common.ParseError("llm params", "json", err)
	}

	text := ""
	if doc != nil {
		text = doc.FullText
	}

	spec := FieldSpec{Path: "value", Hint: stripEmbeddedJSON(p.Hint), IsArray: isArray}
	results, err := requestFields(ctx, s.Client, text, []FieldSpec{spec})
	if err != nil {
		return Field{}, err
	}
	return toField(text, results["value"], isArray), nil
}

// BatchExtractor issues a single LLM call requesting every LLM-bound
// field at once, per the contract that extraction engines must not spend
// one round trip per field.
type BatchExtractor struct {
	Client Client
}

// ExtractAll returns one Field per requested FieldSpec, keyed by path.
func (b BatchExtractor) ExtractAll(ctx context.Context, doc *ocr.Result, fields []FieldSpec) (map[string]Field, error) {
	if b.Client == nil {
		return nil, common.FailedTo("extract via llm", fmt.Errorf("no llm client configured"))
	}
	text := ""
	if doc != nil {
		text = doc.FullText
	}

	raw, err := requestFields(ctx, b.Client, text, fields)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Field, len(fields))
	specByPath := make(map[string]FieldSpec, len(fields))
	for _, f := range fields {
		specByPath[f.Path] = f
	}
	for path, value := range raw {
		spec := specByPath[path]
		out[path] = toField(text, value, spec.IsArray)
	}
	return out, nil
}

// requestFields builds the schema-shaped request, calls the client, and
// parses its JSON response into a path->value map.
func requestFields(ctx context.Context, client Client, text string, fields []FieldSpec) (map[string]interface{}, error) {
	schema := make(map[string]string, len(fields))
	hints := make(map[string]string, len(fields))
	for _, f := range fields {
		kind := "string"
		if f.IsArray {
			kind = "array of string"
		}
		schema[f.Path] = kind
		hints[f.Path] = f.Hint
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, common.FailedTo("encode llm schema", err)
	}
	hintsJSON, err := json.Marshal(hints)
	if err != nil {
		return nil, common.FailedTo("encode llm hints", err)
	}

	userPrompt := fmt.Sprintf(
		"Document text:\n%s\n\nFields to extract (name -> type):\n%s\n\nField hints (name -> operator note):\n%s",
		text, schemaJSON, hintsJSON,
	)

	reply, err := client.Complete(ctx, instructionSet, userPrompt)
	if err != nil {
		return nil, common.FailedToWithDetails("call llm for extraction", "llm", "", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return nil, common.ParseError("llm response", "json", err)
	}
	return parsed, nil
}

func toField(ocrText string, value interface{}, isArray bool) Field {
	if isArray {
		items, _ := value.([]interface{})
		strs := make([]string, 0, len(items))
		for _, it := range items {
			if s, ok := it.(string); ok {
				strs = append(strs, s)
			}
		}
		return Field{Value: items, Confidence: llmArrayConfidence(ocrText, strs)}
	}
	s, _ := value.(string)
	return Field{Value: s, Confidence: llmFieldConfidence(ocrText, s)}
}

// stripEmbeddedJSON removes any JSON object/array literal an operator
// accidentally pasted into a prompt hint, leaving plain instructional
// text.
func stripEmbeddedJSON(hint string) string {
	start := strings.IndexAny(hint, "{[")
	if start < 0 {
		return strings.TrimSpace(hint)
	}
	open := hint[start]
	close := byte('}')
	if open == '[' {
		close = ']'
	}
	end := strings.LastIndexByte(hint, close)
	if end < start {
		return strings.TrimSpace(hint)
	}
	return strings.TrimSpace(hint[:start] + hint[end+1:])
}
