package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

const expressionTimeout = 100 * time.Millisecond

type expressionParams struct {
	Expression string `json:"expression"`
	Message    string `json:"message,omitempty"`
}

// ExpressionRunner evaluates a JavaScript boolean expression against the
// full document, with `doc` and `value` bound in scope. Implementations
// must enforce their own wall-clock budget; GojaRunner does this via
// goja's interrupt mechanism.
type ExpressionRunner interface {
	Run(ctx context.Context, expression string, doc map[string]interface{}, value interface{}) (bool, error)
}

// GojaRunner evaluates predicate expressions with the embeddable goja JS
// engine, interrupting any run that exceeds its deadline.
type GojaRunner struct{}

func (GojaRunner) Run(ctx context.Context, expression string, doc map[string]interface{}, value interface{}) (bool, error) {
	vm := goja.New()
	if err := vm.Set("doc", doc); err != nil {
		return false, fmt.Errorf("bind doc into sandbox: %w", err)
	}
	if err := vm.Set("value", value); err != nil {
		return false, fmt.Errorf("bind value into sandbox: %w", err)
	}

	deadline := time.Now().Add(expressionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan struct{})
	timer := time.AfterFunc(time.Until(deadline), func() {
		vm.Interrupt("expression predicate exceeded its time budget")
	})
	defer timer.Stop()
	defer close(done)

	result, err := vm.RunString(expression)
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}
	return result.ToBoolean(), nil
}

func evalExpression(doc map[string]interface{}, p Predicate, runner ExpressionRunner) (*Failure, error) {
	if runner == nil {
		runner = GojaRunner{}
	}

	var params expressionParams
	if err := json.Unmarshal(p.Params, &params); err != nil {
		return nil, fmt.Errorf("decode expression params for %s: %w", p.Field, err)
	}

	value, _ := get(doc, p.Field)

	ctx, cancel := context.WithTimeout(context.Background(), expressionTimeout)
	defer cancel()

	ok, err := runner.Run(ctx, params.Expression, doc, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		reason := params.Message
		if reason == "" {
			reason = "expression predicate failed"
		}
		return &Failure{Field: p.Field, Reason: reason}, nil
	}
	return nil, nil
}
