// Package validation checks form values against the tagged validation spec of
// a schema. Only visible fields are validated; each field reports at most one
// error, the first failing rule in declared order.
package validation

import (
	"log/slog"
	"sort"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/resolver"
)

// Error codes reported in FieldError.Code.
const (
	CodeRequired  = "required"
	CodeTooLong   = "tooLong"
	CodeTooShort  = "tooShort"
	CodeInteger   = "integer"
	CodeEnum      = "enum"
	CodeMIMEType  = "mimeType"
	CodeFileSize  = "fileSize"
	CodeEmail     = "email"
	CodePhone     = "phone"
	CodeDate      = "date"
	CodeDateOrder = "dateOrder"
	CodeTime      = "time"
	CodeTimeOrder = "timeOrder"
)

// DefaultMIMETypes is the attachment allowlist used when a mimeTypes rule
// does not name its own types.
var DefaultMIMETypes = []string{"application/pdf", "image/jpeg", "image/png"}

// FieldError is a single field-scoped failure.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorMap maps field keys to their first failing rule. An empty map means
// the values are valid.
type ErrorMap map[string]FieldError

// Valid reports whether the map holds no errors.
func (m ErrorMap) Valid() bool {
	return len(m) == 0
}

// Keys returns the failing field keys in lexical order.
func (m ErrorMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Option customises an Engine.
type Option func(*Engine)

// WithResolver sets the resolver used to determine visibility, active
// branches and enum options.
func WithResolver(r *resolver.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithLogger sets the logger used for rule kinds the engine does not know.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine evaluates validation rules. It holds no per-form state and is safe
// for concurrent use.
type Engine struct {
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// New constructs an Engine.
func New(options ...Option) *Engine {
	e := &Engine{logger: slog.Default().WithGroup("validation")}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(e)
	}
	if e.resolver == nil {
		e.resolver = resolver.New(resolver.WithLogger(e.logger))
	}
	return e
}

// Validate returns the error map for values. It never mutates values.
func (e *Engine) Validate(schema *model.Schema, values model.Values) ErrorMap {
	errs := make(ErrorMap)
	active := e.resolver.ActiveRules(schema, values)
	for _, field := range schema.Fields() {
		rules := active[field.Key]
		if len(rules) == 0 {
			continue
		}
		if fieldErr, failed := e.validateField(schema, field, values, rules); failed {
			errs[field.Key] = fieldErr
		}
	}
	return errs
}

// ValidateField returns the error for a single key, or false when the field
// passes, is hidden, or carries no rules.
func (e *Engine) ValidateField(schema *model.Schema, values model.Values, key string) (FieldError, bool) {
	field, ok := schema.Field(key)
	if !ok {
		return FieldError{}, false
	}
	rules := e.resolver.ActiveRules(schema, values)[key]
	if len(rules) == 0 {
		return FieldError{}, false
	}
	return e.validateField(schema, field, values, rules)
}

func (e *Engine) validateField(schema *model.Schema, field model.FieldSpec, values model.Values, rules []model.ValidationRule) (FieldError, bool) {
	value := values[field.Key]
	for _, rule := range rules {
		check, ok := checks[rule.Kind]
		if !ok {
			e.logger.Warn("unknown validation rule", "form", schema.Kind(), "field", field.Key, "rule", rule.Kind)
			continue
		}
		// Only required looks at empty values; other rules apply once the
		// user has entered something.
		if rule.Kind != model.RuleRequired && model.IsEmpty(value) {
			continue
		}
		in := input{
			schema:   schema,
			field:    field,
			values:   values,
			value:    value,
			rule:     rule,
			resolver: e.resolver,
		}
		if code, message, failed := check(in); failed {
			if rule.Message != "" {
				message = rule.Message
			}
			return FieldError{Code: code, Message: message}, true
		}
	}
	return FieldError{}, false
}
