package model

import "strings"

// FormKind identifies one of the registered forms.
type FormKind string

const (
	FormKindSportsComplex FormKind = "sportsComplex"
	FormKindYouthHouse    FormKind = "youthHouse"
	FormKindInvestment    FormKind = "investment"
	FormKindSignup        FormKind = "signup"
)

// FieldType is the value kind a field stores.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeNumber    FieldType = "number"
	FieldTypeEnum      FieldType = "enum"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeDate      FieldType = "date"
	FieldTypeTime      FieldType = "time"
	FieldTypeDateRange FieldType = "dateRange"
	FieldTypeFile      FieldType = "file"
	FieldTypeDerived   FieldType = "derived"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeNumber, FieldTypeEnum, FieldTypeBoolean,
		FieldTypeDate, FieldTypeTime, FieldTypeDateRange, FieldTypeFile, FieldTypeDerived:
		return true
	default:
		return false
	}
}

// Derivation functions understood by the derive package.
const (
	DeriveDaysBetween  = "daysBetween"
	DeriveHoursBetween = "hoursBetween"
)

// DerivedSpec computes a read-only integer field from other fields. Inputs
// hold either a single dateRange key or a (from, to) pair of date/time keys.
type DerivedSpec struct {
	Fn        string   `json:"fn" yaml:"fn"`
	Inputs    []string `json:"inputs" yaml:"inputs"`
	Inclusive bool     `json:"inclusive,omitempty" yaml:"inclusive,omitempty"`
}

// FieldSpec is the static declaration of one form field.
type FieldSpec struct {
	Key         string              `json:"key"`
	Type        FieldType           `json:"type"`
	Label       string              `json:"label,omitempty"`
	Group       string              `json:"group,omitempty"`
	Default     any                 `json:"default,omitempty"`
	Parent      string              `json:"parent,omitempty"`
	When        string              `json:"when,omitempty"`
	ResetsGroup string              `json:"resetsGroup,omitempty"`
	Options     []string            `json:"options,omitempty"`
	OptionsBy   map[string][]string `json:"optionsBy,omitempty"`
	Derive      *DerivedSpec        `json:"derive,omitempty"`
	Metadata    map[string]string   `json:"metadata,omitempty"`
}

// IsDerived reports whether the field is computed rather than user-editable.
func (f FieldSpec) IsDerived() bool {
	return f.Type == FieldTypeDerived || f.Derive != nil
}

// Gated reports whether visibility depends on a parent selection.
func (f FieldSpec) Gated() bool {
	return strings.TrimSpace(f.When) != ""
}

// DefaultValue returns a fresh copy of the field's default, normalised to the
// field type.
func (f FieldSpec) DefaultValue() any {
	return Normalize(f.Type, f.Default)
}

// Validation rule kinds.
const (
	RuleRequired  = "required"
	RuleMaxLength = "maxLength"
	RuleMinLength = "minLength"
	RuleInteger   = "integer"
	RuleEnum      = "enum"
	RuleMIMETypes = "mimeTypes"
	RuleMaxSize   = "maxSize"
	RuleEmail     = "email"
	RulePhone     = "phone"
	RuleDateOrder = "dateOrder"
	RuleTime      = "time"
	RuleTimeOrder = "timeOrder"
)

// ValidationRule is a single constraint. Thresholds live in Params["value"],
// list parameters are comma separated (Params["values"], Params["types"]) and
// cross-field rules reference the other key through Params["from"].
type ValidationRule struct {
	Kind    string            `json:"kind" yaml:"kind"`
	Params  map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Message string            `json:"message,omitempty" yaml:"message,omitempty"`
}

// Param returns a trimmed parameter value.
func (r ValidationRule) Param(name string) string {
	if r.Params == nil {
		return ""
	}
	return strings.TrimSpace(r.Params[name])
}

// ValidationBranch holds rules that apply only while the discriminator field
// holds Value.
type ValidationBranch struct {
	Discriminator string                      `json:"discriminator"`
	Value         string                      `json:"value"`
	Rules         map[string][]ValidationRule `json:"rules"`
}

// ValidationSpec is a tagged set of validation branches plus base rules that
// are always active.
type ValidationSpec struct {
	Rules    map[string][]ValidationRule `json:"rules,omitempty"`
	Branches []ValidationBranch          `json:"branches,omitempty"`
}
