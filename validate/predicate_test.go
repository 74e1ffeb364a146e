package validate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestEvaluate_Required(t *testing.T) {
	doc := map[string]interface{}{"email": ""}
	failures, err := Evaluate(doc, []Predicate{{Field: "email", Type: PredicateRequired}}, nil)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "email", failures[0].Field)
}

func TestEvaluate_PatternNamed(t *testing.T) {
	doc := map[string]interface{}{"email": "not-an-email"}
	params := rawParams(t, patternParams{Name: "email"})
	failures, err := Evaluate(doc, []Predicate{{Field: "email", Type: PredicatePattern, Params: params}}, nil)
	require.NoError(t, err)
	require.Len(t, failures, 1)
}

func TestEvaluate_PatternPasses(t *testing.T) {
	doc := map[string]interface{}{"email": "a@b.com"}
	params := rawParams(t, patternParams{Name: "email"})
	failures, err := Evaluate(doc, []Predicate{{Field: "email", Type: PredicatePattern, Params: params}}, nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestEvaluate_Range(t *testing.T) {
	min, max := 0.0, 150.0
	doc := map[string]interface{}{"age": float64(200)}
	params := rawParams(t, rangeParams{Min: &min, Max: &max})
	failures, err := Evaluate(doc, []Predicate{{Field: "age", Type: PredicateRange, Params: params}}, nil)
	require.NoError(t, err)
	require.Len(t, failures, 1)
}

func TestEvaluate_ArrayUniqueByKey(t *testing.T) {
	doc := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"sku": "A"},
			map[string]interface{}{"sku": "A"},
		},
	}
	params := rawParams(t, arrayUniqueParams{UniqueKey: "sku"})
	failures, err := Evaluate(doc, []Predicate{{Field: "items", Type: PredicateArrayUnique, Params: params}}, nil)
	require.NoError(t, err)
	require.Len(t, failures, 1)
}

func TestEvaluate_HasFields(t *testing.T) {
	doc := map[string]interface{}{"style": map[string]interface{}{"tone": "formal"}}
	params := rawParams(t, hasFieldsParams{RequiredFields: []string{"tone", "mood"}})
	failures, err := Evaluate(doc, []Predicate{{Field: "style", Type: PredicateHasFields, Params: params}}, nil)
	require.NoError(t, err)
	require.Len(t, failures, 1)
}

func TestEvaluate_EmptyOptionalFieldSkipsNonRequiredChecks(t *testing.T) {
	doc := map[string]interface{}{"nickname": ""}
	params := rawParams(t, patternParams{Pattern: `^[a-z]+$`})
	failures, err := Evaluate(doc, []Predicate{{Field: "nickname", Type: PredicatePattern, Params: params}}, nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestEvaluate_Expression(t *testing.T) {
	doc := map[string]interface{}{"total": float64(100), "paid": float64(40)}
	params := rawParams(t, expressionParams{Expression: "doc.total >= doc.paid", Message: "total below paid"})
	failures, err := Evaluate(doc, []Predicate{{Field: "total", Type: PredicateExpression, Params: params}}, GojaRunner{})
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestEvaluate_ExpressionFails(t *testing.T) {
	doc := map[string]interface{}{"total": float64(10), "paid": float64(40)}
	params := rawParams(t, expressionParams{Expression: "doc.total >= doc.paid", Message: "total below paid"})
	failures, err := Evaluate(doc, []Predicate{{Field: "total", Type: PredicateExpression, Params: params}}, GojaRunner{})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "total below paid", failures[0].Reason)
}

func TestGojaRunner_InterruptsLongRunningExpression(t *testing.T) {
	runner := GojaRunner{}
	ctx, cancel := context.WithTimeout(context.Background(), expressionTimeout)
	defer cancel()

	_, err := runner.Run(ctx, "while(true){}", map[string]interface{}{}, nil)
	assert.Error(t, err)
}
