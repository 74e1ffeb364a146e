// Package validate implements the per-field validation predicates that
// run after cleaning: required, not-empty, pattern, numeric range, array
// length/uniqueness, has-fields, array-items-required, and sandboxed
// JavaScript expressions.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PredicateType names one validation predicate kind.
type PredicateType string

const (
	PredicateRequired           PredicateType = "required"
	PredicateNotEmpty           PredicateType = "not_empty"
	PredicatePattern            PredicateType = "pattern"
	PredicateRange              PredicateType = "range"
	PredicateArrayLength        PredicateType = "array_length"
	PredicateArrayUnique        PredicateType = "array_unique"
	PredicateHasFields          PredicateType = "has_fields"
	PredicateArrayItemsRequired PredicateType = "array_items_required"
	PredicateExpression         PredicateType = "expression"
)

// Predicate is one declared validation rule bound to a field path.
// Params is interpreted according to Type.
type Predicate struct {
	Field  string          `json:"field"`
	Type   PredicateType   `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Failure is one failed predicate, shaped to become an audit reason.
type Failure struct {
	Field  string
	Reason string
}

// namedPatterns are the predefined regex patterns the pattern predicate
// can reference by name instead of supplying a custom one.
var namedPatterns = map[string]string{
	"email":   `^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`,
	"phone":   `^\+?[0-9][0-9\-\s]{6,14}[0-9]$`,
	"url":     `^https?://[^\s]+$`,
	"id-card": `^[0-9]{17}[0-9Xx]$`,
}

// Evaluate runs every predicate against doc and returns the list of
// failures. A field whose value is nil or empty skips every predicate
// except required and not_empty — mirroring the rule that optional
// absent fields aren't otherwise validated.
func Evaluate(doc map[string]interface{}, predicates []Predicate, runner ExpressionRunner) ([]Failure, error) {
	var failures []Failure

	for _, p := range predicates {
		value, _ := get(doc, p.Field)

		if p.Type == PredicateRequired {
			if isEmptyValue(value) {
				failures = append(failures, Failure{Field: p.Field, Reason: "required field is empty"})
			}
			continue
		}

		if isEmptyValue(value) && p.Type != PredicateNotEmpty {
			continue
		}

		failure, err := evalOne(doc, p, value, runner)
		if err != nil {
			return nil, err
		}
		if failure != nil {
			failures = append(failures, *failure)
		}
	}

	return failures, nil
}

func evalOne(doc map[string]interface{}, p Predicate, value interface{}, runner ExpressionRunner) (*Failure, error) {
	switch p.Type {
	case PredicateNotEmpty:
		if isEmptyValue(value) {
			return &Failure{Field: p.Field, Reason: "value is empty"}, nil
		}
	case PredicatePattern:
		return evalPattern(p, value)
	case PredicateRange:
		return evalRange(p, value)
	case PredicateArrayLength:
		return evalArrayLength(p, value)
	case PredicateArrayUnique:
		return evalArrayUnique(p, value)
	case PredicateHasFields:
		return evalHasFields(p, value)
	case PredicateArrayItemsRequired:
		return evalArrayItemsRequired(p, value)
	case PredicateExpression:
		return evalExpression(doc, p, runner)
	default:
		return nil, fmt.Errorf("unknown predicate type %q", p.Type)
	}
	return nil, nil
}

func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}

func get(doc map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var current interface{} = doc
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
