// Package visibility defines how gating rules attached to fields are
// evaluated against the current form values. Implementations live in the expr
// (dependency-free rule language) and cel (Common Expression Language)
// subpackages.
package visibility

// Evaluator determines whether a field should be visible based on its gating
// rule and the current form values.
type Evaluator interface {
	Eval(fieldKey, rule string, ctx Context) (bool, error)
}

// Checker is implemented by evaluators that can validate a rule ahead of
// time so malformed registries fail while loading instead of at runtime.
type Checker interface {
	Check(rule string) error
}

// Context provides inputs to an Evaluator. Values holds the current form
// values while Extras lets callers inject additional context such as the UI
// language or feature flags (referenced as `extras.<name>`).
type Context struct {
	Values map[string]any
	Extras map[string]any
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(fieldKey, rule string, ctx Context) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(fieldKey, rule string, ctx Context) (bool, error) {
	return fn(fieldKey, rule, ctx)
}
