// Package cel evaluates gating rules written in the Common Expression
// Language. Rules see two variables: `values` (the current form values) and
// `extras` (caller supplied context), for example
// `values.accountType == "organization"`.
package cel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/visibility"
)

// Evaluator compiles CEL programs once per rule and caches them.
type Evaluator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// New builds the CEL environment.
func New() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("values", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("extras", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("visibility/cel: create env: %w", err)
	}
	return &Evaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

// Eval evaluates rule against ctx. Empty rules are true; non-boolean results
// are errors.
func (e *Evaluator) Eval(fieldKey, rule string, ctx visibility.Context) (bool, error) {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return true, nil
	}
	prg, err := e.program(trimmed)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{
		"values": activationValues(ctx.Values),
		"extras": activationValues(ctx.Extras),
	})
	if err != nil {
		return false, fmt.Errorf("visibility/cel: eval rule for %s: %w", fieldKey, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("visibility/cel: rule for %s did not return a boolean", fieldKey)
	}
	return ok, nil
}

// Check compiles the rule without evaluating it.
func (e *Evaluator) Check(rule string) error {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return nil
	}
	_, err := e.program(trimmed)
	return err
}

func (e *Evaluator) program(rule string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.cache[rule]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.cache[rule]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("visibility/cel: compile %q: %w", rule, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("visibility/cel: program %q: %w", rule, err)
	}
	e.cache[rule] = prg
	return prg, nil
}

// activationValues converts model value types into CEL-friendly maps.
func activationValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		switch typed := value.(type) {
		case model.DateRange:
			out[key] = map[string]any{"from": typed.From, "to": typed.To}
		case *model.FileRef:
			if typed == nil {
				out[key] = nil
				continue
			}
			out[key] = map[string]any{"name": typed.Name, "size": typed.Size, "mimeType": typed.MIMEType}
		case int:
			out[key] = int64(typed)
		default:
			out[key] = value
		}
	}
	return out
}
