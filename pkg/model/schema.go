package model

import (
	"fmt"
	"strings"
)

// PredicateLanguage selects how gating rules (FieldSpec.When) are parsed.
type PredicateLanguage string

const (
	PredicateExpr PredicateLanguage = "expr"
	PredicateCEL  PredicateLanguage = "cel"
)

// Schema is the resolved description of one form: ordered field specs, the
// dependency graph derived from Parent links and the tagged validation spec.
// Schemas are immutable once built and safe for concurrent use.
type Schema struct {
	kind       FormKind
	predicates PredicateLanguage
	fields     []FieldSpec
	index      map[string]int
	dependents map[string][]string
	groups     map[string][]string
	validation ValidationSpec
}

// NewSchema checks the structural consistency of fields and validation and
// builds the lookup tables. Every failure is a *ConfigurationError.
func NewSchema(kind FormKind, predicates PredicateLanguage, fields []FieldSpec, validation ValidationSpec) (*Schema, error) {
	if strings.TrimSpace(string(kind)) == "" {
		return nil, &ConfigurationError{Reason: "form kind is required"}
	}
	if predicates == "" {
		predicates = PredicateExpr
	}
	if predicates != PredicateExpr && predicates != PredicateCEL {
		return nil, &ConfigurationError{Kind: kind, Reason: fmt.Sprintf("unsupported predicate language %q", predicates)}
	}

	s := &Schema{
		kind:       kind,
		predicates: predicates,
		fields:     make([]FieldSpec, 0, len(fields)),
		index:      make(map[string]int, len(fields)),
		dependents: make(map[string][]string),
		groups:     make(map[string][]string),
		validation: validation,
	}

	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			return nil, &ConfigurationError{Kind: kind, Reason: "field key is required"}
		}
		if _, exists := s.index[key]; exists {
			return nil, &ConfigurationError{Kind: kind, Key: key, Reason: "duplicate field key"}
		}
		if !field.Type.Valid() {
			return nil, &ConfigurationError{Kind: kind, Key: key, Reason: fmt.Sprintf("unknown field type %q", field.Type)}
		}
		field.Key = key
		if field.Derive != nil {
			field.Type = FieldTypeDerived
		}
		s.index[key] = len(s.fields)
		s.fields = append(s.fields, field)
		if field.Group != "" {
			s.groups[field.Group] = append(s.groups[field.Group], key)
		}
	}

	for _, field := range s.fields {
		if err := s.checkField(field); err != nil {
			return nil, err
		}
		if field.Parent != "" {
			s.dependents[field.Parent] = append(s.dependents[field.Parent], field.Key)
		}
	}
	if err := s.checkCycles(); err != nil {
		return nil, err
	}
	if err := s.checkValidation(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) checkField(field FieldSpec) error {
	if field.Parent != "" {
		if field.Parent == field.Key {
			return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: "field cannot gate itself"}
		}
		if _, ok := s.index[field.Parent]; !ok {
			return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: fmt.Sprintf("unknown parent %q", field.Parent)}
		}
	}
	if field.Gated() && field.Parent == "" {
		return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: "gating rule requires a parent"}
	}
	if field.ResetsGroup != "" {
		if _, ok := s.groups[field.ResetsGroup]; !ok {
			return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: fmt.Sprintf("unknown reset group %q", field.ResetsGroup)}
		}
	}
	if len(field.OptionsBy) > 0 && field.Parent == "" {
		return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: "optionsBy requires a parent"}
	}
	if field.Derive != nil {
		if err := s.checkDerive(field); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) checkDerive(field FieldSpec) error {
	spec := field.Derive
	switch spec.Fn {
	case DeriveDaysBetween, DeriveHoursBetween:
	default:
		return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: fmt.Sprintf("unknown derive function %q", spec.Fn)}
	}
	if len(spec.Inputs) == 0 || len(spec.Inputs) > 2 {
		return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: "derive expects one or two inputs"}
	}
	for _, input := range spec.Inputs {
		source, ok := s.Field(input)
		if !ok {
			return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: fmt.Sprintf("unknown derive input %q", input)}
		}
		if source.IsDerived() {
			return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: fmt.Sprintf("derive input %q is itself derived", input)}
		}
	}
	if len(spec.Inputs) == 1 {
		source, _ := s.Field(spec.Inputs[0])
		if spec.Fn != DeriveDaysBetween || source.Type != FieldTypeDateRange {
			return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: "a single derive input must be a dateRange for daysBetween"}
		}
	}
	return nil
}

func (s *Schema) checkCycles() error {
	for _, field := range s.fields {
		seen := map[string]struct{}{field.Key: {}}
		parent := field.Parent
		for parent != "" {
			if _, loop := seen[parent]; loop {
				return &ConfigurationError{Kind: s.kind, Key: field.Key, Reason: "parent chain forms a cycle"}
			}
			seen[parent] = struct{}{}
			next, _ := s.Field(parent)
			parent = next.Parent
		}
	}
	return nil
}

func (s *Schema) checkValidation() error {
	check := func(rules map[string][]ValidationRule) error {
		for key, list := range rules {
			if _, ok := s.index[key]; !ok {
				return &ConfigurationError{Kind: s.kind, Key: key, Reason: "validation rule targets unknown field"}
			}
			for _, rule := range list {
				if strings.TrimSpace(rule.Kind) == "" {
					return &ConfigurationError{Kind: s.kind, Key: key, Reason: "validation rule kind is required"}
				}
				if from := rule.Param("from"); from != "" {
					if _, ok := s.index[from]; !ok {
						return &ConfigurationError{Kind: s.kind, Key: key, Reason: fmt.Sprintf("rule %s references unknown field %q", rule.Kind, from)}
					}
				}
			}
		}
		return nil
	}
	if err := check(s.validation.Rules); err != nil {
		return err
	}
	for _, branch := range s.validation.Branches {
		if _, ok := s.index[branch.Discriminator]; !ok {
			return &ConfigurationError{Kind: s.kind, Key: branch.Discriminator, Reason: "unknown branch discriminator"}
		}
		if err := check(branch.Rules); err != nil {
			return err
		}
	}
	return nil
}

// Kind returns the form kind.
func (s *Schema) Kind() FormKind { return s.kind }

// Predicates returns the gating rule language.
func (s *Schema) Predicates() PredicateLanguage { return s.predicates }

// Fields returns the ordered field specs. The slice is a copy.
func (s *Schema) Fields() []FieldSpec {
	return append([]FieldSpec(nil), s.fields...)
}

// Field looks up a field spec by key.
func (s *Schema) Field(key string) (FieldSpec, bool) {
	idx, ok := s.index[key]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[idx], true
}

// MustField is Field returning a *ConfigurationError for unknown keys.
func (s *Schema) MustField(key string) (FieldSpec, error) {
	field, ok := s.Field(key)
	if !ok {
		return FieldSpec{}, UnknownField(s.kind, key)
	}
	return field, nil
}

// Descendants returns every key transitively gated by key, parents before
// children.
func (s *Schema) Descendants(key string) []string {
	var out []string
	queue := append([]string(nil), s.dependents[key]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		out = append(out, next)
		queue = append(queue, s.dependents[next]...)
	}
	return out
}

// Group returns the keys that share a group id, in schema order.
func (s *Schema) Group(group string) []string {
	return append([]string(nil), s.groups[group]...)
}

// Validation returns the tagged validation spec.
func (s *Schema) Validation() ValidationSpec { return s.validation }

// Defaults returns a Values map with every field at its default.
func (s *Schema) Defaults() Values {
	out := make(Values, len(s.fields))
	for _, field := range s.fields {
		out[field.Key] = field.DefaultValue()
	}
	return out
}
