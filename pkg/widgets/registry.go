// Package widgets picks the input widget a presentation collaborator uses
// for each field. Explicit `widget` metadata wins; otherwise registered
// matchers are tried by priority.
package widgets

import (
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formengine/pkg/model"
)

// Built-in widget identifiers exposed by the registry.
const (
	WidgetInput     = "input"
	WidgetPassword  = "password"
	WidgetMultiline = "multiline"
	WidgetNumber    = "number"
	WidgetSelect    = "select"
	WidgetConfirm   = "confirm"
	WidgetDate      = "date"
	WidgetTime      = "time"
	WidgetDateRange = "date-range"
	WidgetFile      = "file"
	WidgetReadOnly  = "read-only"
)

// Matcher decides whether a widget should handle the supplied field.
type Matcher func(field model.FieldSpec) bool

type rule struct {
	name     string
	priority int
	match    Matcher
	order    int
}

// Registry selects widgets for fields based on explicit metadata or
// registered matchers. Higher priority wins; ties fall back to registration
// order. An empty registry never resolves a widget.
type Registry struct {
	mu    sync.RWMutex
	rules []rule
}

// NewRegistry constructs a registry with the built-in matchers registered.
func NewRegistry() *Registry {
	reg := &Registry{}
	reg.registerBuiltins()
	return reg
}

// Register adds a widget matcher with the provided name and priority. The
// latest registration of a duplicate name wins only through priority.
func (r *Registry) Register(name string, priority int, matcher Matcher) {
	if r == nil || matcher == nil {
		return
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = append(r.rules, rule{
		name:     trimmed,
		priority: priority,
		match:    matcher,
		order:    len(r.rules),
	})
}

// Resolve returns the widget name for a field.
func (r *Registry) Resolve(field model.FieldSpec) (string, bool) {
	if explicit := explicitWidget(field); explicit != "" {
		return explicit, true
	}
	if r == nil {
		return "", false
	}
	r.mu.RLock()
	if len(r.rules) == 0 {
		r.mu.RUnlock()
		return "", false
	}
	rules := append([]rule(nil), r.rules...)
	r.mu.RUnlock()
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].priority == rules[j].priority {
			return rules[i].order < rules[j].order
		}
		return rules[i].priority > rules[j].priority
	})
	for _, entry := range rules {
		if entry.match(field) {
			return entry.name, true
		}
	}
	return "", false
}

// Assign resolves a widget for every field of schema. Fields no matcher
// handles fall back to WidgetInput.
func (r *Registry) Assign(schema *model.Schema) map[string]string {
	if schema == nil {
		return nil
	}
	out := make(map[string]string, len(schema.Fields()))
	for _, field := range schema.Fields() {
		widget, ok := r.Resolve(field)
		if !ok {
			widget = WidgetInput
		}
		out[field.Key] = widget
	}
	return out
}

func explicitWidget(field model.FieldSpec) string {
	if field.IsDerived() {
		return ""
	}
	if field.Metadata != nil {
		if widget := strings.TrimSpace(field.Metadata["widget"]); widget != "" {
			return widget
		}
	}
	return ""
}

func (r *Registry) registerBuiltins() {
	r.Register(WidgetReadOnly, 100, func(field model.FieldSpec) bool {
		return field.IsDerived()
	})

	r.Register(WidgetConfirm, 90, func(field model.FieldSpec) bool {
		return field.Type == model.FieldTypeBoolean
	})

	r.Register(WidgetSelect, 80, func(field model.FieldSpec) bool {
		return field.Type == model.FieldTypeEnum
	})

	r.Register(WidgetFile, 70, func(field model.FieldSpec) bool {
		return field.Type == model.FieldTypeFile
	})

	r.Register(WidgetDateRange, 60, func(field model.FieldSpec) bool {
		return field.Type == model.FieldTypeDateRange
	})

	r.Register(WidgetDate, 50, func(field model.FieldSpec) bool {
		return field.Type == model.FieldTypeDate
	})

	r.Register(WidgetTime, 50, func(field model.FieldSpec) bool {
		return field.Type == model.FieldTypeTime
	})

	r.Register(WidgetNumber, 40, func(field model.FieldSpec) bool {
		return field.Type == model.FieldTypeNumber
	})
}
