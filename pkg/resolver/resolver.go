// Package resolver evaluates the field dependency graph of a form: it applies
// a change, cascades resets through gated descendants and reset groups, and
// reports the resulting visible field set.
//
// The resolver never fails. Rules that cannot be evaluated count as false so
// the gated field stays hidden; registries are expected to be checked at load
// time (see registry.LoadFS) so this only happens with hand-built schemas.
package resolver

import (
	"log/slog"
	"sync"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/visibility"
	visibilitycel "github.com/goliatone/go-formengine/pkg/visibility/cel"
	visibilityexpr "github.com/goliatone/go-formengine/pkg/visibility/expr"
)

// Option customises a Resolver.
type Option func(*Resolver)

// WithEvaluator overrides the evaluator used for a predicate language.
func WithEvaluator(lang model.PredicateLanguage, evaluator visibility.Evaluator) Option {
	return func(r *Resolver) {
		if evaluator != nil {
			r.evaluators[lang] = evaluator
		}
	}
}

// WithExtras exposes additional context to gating rules as `extras.<key>`.
func WithExtras(extras map[string]any) Option {
	return func(r *Resolver) {
		r.extras = extras
	}
}

// WithLogger sets the logger used to report rule evaluation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver computes visibility and cascading resets. It is safe for
// concurrent use.
type Resolver struct {
	evaluators map[model.PredicateLanguage]visibility.Evaluator
	extras     map[string]any
	logger     *slog.Logger

	celOnce sync.Once
	cel     visibility.Evaluator
	celErr  error
}

// New constructs a Resolver with the expr evaluator and a lazily created CEL
// evaluator.
func New(options ...Option) *Resolver {
	r := &Resolver{
		evaluators: map[model.PredicateLanguage]visibility.Evaluator{
			model.PredicateExpr: visibilityexpr.New(),
		},
		logger: slog.Default().WithGroup("resolver"),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Evaluator returns the evaluator for lang, creating the CEL environment on
// first use. The evaluator map is read-only after New.
func (r *Resolver) Evaluator(lang model.PredicateLanguage) (visibility.Evaluator, error) {
	if lang == "" {
		lang = model.PredicateExpr
	}
	if eval, ok := r.evaluators[lang]; ok {
		return eval, nil
	}
	if lang != model.PredicateCEL {
		return nil, &model.ConfigurationError{Reason: "no evaluator for predicate language " + string(lang)}
	}
	r.celOnce.Do(func() {
		r.cel, r.celErr = visibilitycel.New()
	})
	if r.celErr != nil {
		return nil, r.celErr
	}
	return r.cel, nil
}

// Result is the outcome of a resolve pass.
type Result struct {
	Values  model.Values
	Visible []string
}

// IsVisible reports whether key is part of the visible set.
func (r Result) IsVisible(key string) bool {
	for _, candidate := range r.Visible {
		if candidate == key {
			return true
		}
	}
	return false
}

// Resolve applies value to changedKey and returns the next values together
// with the visible key set. When the value actually changes, every transitive
// dependent of changedKey and, if the field declares resetsGroup, every other
// member of that group is reset to its default. Hidden fields are then reset
// until the mapping is stable. Unknown and derived keys leave the values
// untouched apart from that final pass.
func (r *Resolver) Resolve(schema *model.Schema, current model.Values, changedKey string, value any) Result {
	next := r.normalize(schema, current)

	field, ok := schema.Field(changedKey)
	if ok && !field.IsDerived() {
		normalized := model.Normalize(field.Type, value)
		previous := next[changedKey]
		next[changedKey] = normalized
		if !model.Equal(previous, normalized) {
			r.cascade(schema, next, field)
		}
	}

	return r.settle(schema, next)
}

// Settle normalises values against the schema and resets hidden fields
// without applying a change. Sessions call it once on creation.
func (r *Resolver) Settle(schema *model.Schema, current model.Values) Result {
	return r.settle(schema, r.normalize(schema, current))
}

// Visible returns the visible keys for values, in schema order.
func (r *Resolver) Visible(schema *model.Schema, values model.Values) []string {
	visible := r.visibility(schema, values)
	out := make([]string, 0, len(visible))
	for _, field := range schema.Fields() {
		if visible[field.Key] {
			out = append(out, field.Key)
		}
	}
	return out
}

// VisibleSet returns the visible keys as a set.
func (r *Resolver) VisibleSet(schema *model.Schema, values model.Values) map[string]bool {
	visible := r.visibility(schema, values)
	for key, ok := range visible {
		if !ok {
			delete(visible, key)
		}
	}
	return visible
}

// Options returns the allowed enum values for key under the current values.
// Fields with optionsBy take the list keyed by their parent's value; nil
// means "no option set is active".
func (r *Resolver) Options(schema *model.Schema, values model.Values, key string) []string {
	field, ok := schema.Field(key)
	if !ok {
		return nil
	}
	if len(field.OptionsBy) > 0 {
		return append([]string(nil), field.OptionsBy[values.String(field.Parent)]...)
	}
	return append([]string(nil), field.Options...)
}

// ActiveRules returns the validation rules that apply under values, keyed by
// visible field. Base rules come first, followed by the rules of every branch
// whose discriminator is visible and currently holds the branch value. Hidden
// fields never appear.
func (r *Resolver) ActiveRules(schema *model.Schema, values model.Values) map[string][]model.ValidationRule {
	visible := r.visibility(schema, values)
	spec := schema.Validation()
	out := make(map[string][]model.ValidationRule)
	add := func(rules map[string][]model.ValidationRule) {
		for key, list := range rules {
			if visible[key] {
				out[key] = append(out[key], list...)
			}
		}
	}
	add(spec.Rules)
	for _, branch := range spec.Branches {
		if visible[branch.Discriminator] && values.String(branch.Discriminator) == branch.Value {
			add(branch.Rules)
		}
	}
	return out
}

// Required returns the visible keys carrying an active required rule, in
// schema order.
func (r *Resolver) Required(schema *model.Schema, values model.Values) []string {
	active := r.ActiveRules(schema, values)
	var out []string
	for _, field := range schema.Fields() {
		for _, rule := range active[field.Key] {
			if rule.Kind == model.RuleRequired {
				out = append(out, field.Key)
				break
			}
		}
	}
	return out
}

func (r *Resolver) normalize(schema *model.Schema, current model.Values) model.Values {
	next := schema.Defaults()
	for key, value := range current {
		field, ok := schema.Field(key)
		if !ok {
			continue
		}
		next[key] = model.Normalize(field.Type, value)
	}
	return next
}

func (r *Resolver) cascade(schema *model.Schema, values model.Values, changed model.FieldSpec) {
	reset := func(key string) {
		if field, ok := schema.Field(key); ok {
			values[key] = field.DefaultValue()
		}
	}

	for _, key := range schema.Descendants(changed.Key) {
		reset(key)
	}
	if changed.ResetsGroup == "" {
		return
	}

	protected := ancestors(schema, changed.Key)
	protected[changed.Key] = struct{}{}
	for _, member := range schema.Group(changed.ResetsGroup) {
		if _, skip := protected[member]; skip {
			continue
		}
		reset(member)
		for _, key := range schema.Descendants(member) {
			reset(key)
		}
	}
}

func (r *Resolver) settle(schema *model.Schema, values model.Values) Result {
	fields := schema.Fields()
	var visible map[string]bool
	for pass := 0; pass <= len(fields); pass++ {
		visible = r.visibility(schema, values)
		changed := false
		for _, field := range fields {
			if visible[field.Key] {
				continue
			}
			def := field.DefaultValue()
			if !model.Equal(values[field.Key], def) {
				values[field.Key] = def
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	keys := make([]string, 0, len(fields))
	for _, field := range fields {
		if visible[field.Key] {
			keys = append(keys, field.Key)
		}
	}
	return Result{Values: values, Visible: keys}
}

func (r *Resolver) visibility(schema *model.Schema, values model.Values) map[string]bool {
	fields := schema.Fields()
	visible := make(map[string]bool, len(fields))
	ctx := visibility.Context{Values: values, Extras: r.extras}

	evaluator, err := r.Evaluator(schema.Predicates())
	if err != nil {
		r.logger.Error("gating rules cannot be evaluated", "form", schema.Kind(), "error", err)
	}

	var visit func(field model.FieldSpec) bool
	visit = func(field model.FieldSpec) bool {
		if ok, done := visible[field.Key]; done {
			return ok
		}
		ok := true
		if field.Parent != "" {
			parent, _ := schema.Field(field.Parent)
			ok = visit(parent)
		}
		if ok && field.Gated() {
			if evaluator == nil {
				ok = false
			} else {
				result, evalErr := evaluator.Eval(field.Key, field.When, ctx)
				if evalErr != nil {
					r.logger.Debug("gating rule failed", "form", schema.Kind(), "field", field.Key, "error", evalErr)
				}
				ok = evalErr == nil && result
			}
		}
		visible[field.Key] = ok
		return ok
	}

	for _, field := range fields {
		visit(field)
	}
	return visible
}

func ancestors(schema *model.Schema, key string) map[string]struct{} {
	out := make(map[string]struct{})
	field, ok := schema.Field(key)
	for ok && field.Parent != "" {
		out[field.Parent] = struct{}{}
		field, ok = schema.Field(field.Parent)
	}
	return out
}
