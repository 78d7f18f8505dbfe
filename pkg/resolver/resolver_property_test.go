package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/goliatone/go-formengine/pkg/model"
)

type edit struct {
	key   string
	value any
}

// edits decodes generated indices into edits against schema: each pair picks
// a field and one of its choices (or a sample value for free-form fields).
func edits(r *Resolver, schema *model.Schema, values model.Values, picks []int) []edit {
	fields := schema.Fields()
	out := make([]edit, 0, len(picks)/2)
	for i := 0; i+1 < len(picks); i += 2 {
		field := fields[picks[i]%len(fields)]
		choices := selectorChoices(field)
		if field.Type == model.FieldTypeEnum {
			for _, option := range r.Options(schema, values, field.Key) {
				choices = append(choices, option)
			}
		}
		if value, ok := sample(r, schema, values, field); ok {
			choices = append(choices, value)
		}
		choices = append(choices, field.DefaultValue())
		out = append(out, edit{key: field.Key, value: choices[picks[i+1]%len(choices)]})
	}
	return out
}

func TestResolveIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	r := New()
	schemas := []*model.Schema{
		loadSchema(t, model.FormKindSportsComplex),
		loadSchema(t, model.FormKindYouthHouse),
		loadSchema(t, model.FormKindInvestment),
		loadSchema(t, model.FormKindSignup),
	}

	properties.Property("resolving the same change twice yields the same result", prop.ForAll(
		func(schemaIdx int, picks []int) bool {
			schema := schemas[schemaIdx]
			values := schema.Defaults()
			var last edit
			for _, e := range edits(r, schema, values, picks) {
				values = r.Resolve(schema, values, e.key, e.value).Values
				last = e
			}
			if last.key == "" {
				return true
			}
			first := r.Resolve(schema, values, last.key, last.value)
			second := r.Resolve(schema, first.Values, last.key, last.value)
			return cmp.Equal(first.Visible, second.Visible) && cmp.Equal(first.Values, second.Values)
		},
		gen.IntRange(0, len(schemas)-1),
		gen.SliceOfN(12, gen.IntRange(0, 1000)),
	))

	properties.Property("hidden fields always hold their default", prop.ForAll(
		func(schemaIdx int, picks []int) bool {
			schema := schemas[schemaIdx]
			values := schema.Defaults()
			var res Result
			for _, e := range edits(r, schema, values, picks) {
				res = r.Resolve(schema, values, e.key, e.value)
				values = res.Values
			}
			visible := r.VisibleSet(schema, values)
			for _, field := range schema.Fields() {
				if !visible[field.Key] && !model.Equal(values[field.Key], field.DefaultValue()) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, len(schemas)-1),
		gen.SliceOfN(12, gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
