package builtin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/itchyny/gojq"

	"github.com/meshagent/meshagent/pkg/toolregistry"
)

// TransformTool evaluates an expr-lang expression or a gojq filter against
// its "input" argument, adapted from the teacher's TransformExecutor
// "expression" case (expr-lang/expr) generalized with a gojq "query" mode,
// since gojq otherwise has no home in this tree.
type TransformTool struct{}

func NewTransformTool() *TransformTool { return &TransformTool{} }

func (t *TransformTool) Name() string { return "transform" }

func (t *TransformTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mode":       map[string]any{"type": "string", "enum": []string{"expr", "jq"}},
			"expression": map[string]any{"type": "string"},
			"input":      map[string]any{},
		},
		"required": []string{"mode", "expression", "input"},
	}
}

func (t *TransformTool) Cacheable() bool { return true }

func (t *TransformTool) Call(_ context.Context, _ toolregistry.ExecutionContext, args map[string]any) (any, error) {
	mode, _ := args["mode"].(string)
	exprStr, _ := args["expression"].(string)
	input := args["input"]

	switch mode {
	case "jq", "":
		query, err := gojq.Parse(exprStr)
		if err != nil {
			return nil, fmt.Errorf("transform: parsing jq query: %w", err)
		}
		iter := query.Run(input)
		var results []any
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, ok := v.(error); ok {
				return nil, fmt.Errorf("transform: jq evaluation: %w", err)
			}
			results = append(results, v)
		}
		if len(results) == 1 {
			return results[0], nil
		}
		return results, nil

	case "expr":
		env := map[string]any{"input": input}
		program, err := expr.Compile(exprStr, expr.Env(env))
		if err != nil {
			return nil, fmt.Errorf("transform: compiling expression: %w", err)
		}
		return expr.Run(program, env)

	default:
		return nil, fmt.Errorf("transform: unknown mode %q", mode)
	}
}

var _ toolregistry.Tool = (*TransformTool)(nil)
