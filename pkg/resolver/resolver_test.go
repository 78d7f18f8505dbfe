package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/registry"
)

func loadSchema(t *testing.T, kind model.FormKind) *model.Schema {
	t.Helper()
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry.Default returned error: %v", err)
	}
	schema, err := reg.Schema(kind)
	if err != nil {
		t.Fatalf("Schema(%s) returned error: %v", kind, err)
	}
	return schema
}

// sample returns a non-default value for field under values.
func sample(r *Resolver, schema *model.Schema, values model.Values, field model.FieldSpec) (any, bool) {
	switch field.Type {
	case model.FieldTypeEnum:
		options := r.Options(schema, values, field.Key)
		if len(options) == 0 {
			return nil, false
		}
		return options[0], true
	case model.FieldTypeBoolean:
		return true, true
	case model.FieldTypeNumber:
		return "7", true
	case model.FieldTypeDate:
		return "2026-02-01", true
	case model.FieldTypeTime:
		return "10:00", true
	case model.FieldTypeDateRange:
		return model.DateRange{From: "2026-02-01", To: "2026-02-03"}, true
	case model.FieldTypeFile:
		return &model.FileRef{Name: "doc.pdf", Size: 10, MIMEType: "application/pdf"}, true
	case model.FieldTypeDerived:
		return nil, false
	default:
		return "filled", true
	}
}

// fillVisible sets every visible, still-default field under keys until no
// new field appears.
func fillVisible(r *Resolver, schema *model.Schema, values model.Values, keys []string) model.Values {
	for pass := 0; pass <= len(keys); pass++ {
		changed := false
		visible := r.VisibleSet(schema, values)
		for _, key := range keys {
			field, _ := schema.Field(key)
			if !visible[key] || !model.Equal(values[key], field.DefaultValue()) {
				continue
			}
			value, ok := sample(r, schema, values, field)
			if !ok {
				continue
			}
			values = r.Resolve(schema, values, key, value).Values
			changed = true
		}
		if !changed {
			break
		}
	}
	return values
}

func selectorChoices(field model.FieldSpec) []any {
	switch field.Type {
	case model.FieldTypeBoolean:
		return []any{true, false}
	case model.FieldTypeEnum:
		out := make([]any, 0, len(field.Options))
		for _, option := range field.Options {
			out = append(out, option)
		}
		return out
	default:
		return nil
	}
}

func TestCascadingResetForEveryBranchPair(t *testing.T) {
	t.Parallel()

	r := New()
	for _, kind := range []model.FormKind{
		model.FormKindSportsComplex,
		model.FormKindYouthHouse,
		model.FormKindInvestment,
		model.FormKindSignup,
	} {
		schema := loadSchema(t, kind)
		for _, selector := range schema.Fields() {
			descendants := schema.Descendants(selector.Key)
			if len(descendants) == 0 {
				continue
			}
			choices := selectorChoices(selector)
			for _, from := range choices {
				for _, to := range choices {
					if from == to {
						continue
					}
					values := reveal(t, r, schema, selector.Key)
					values = r.Resolve(schema, values, selector.Key, from).Values
					values = fillVisible(r, schema, values, descendants)
					values = r.Resolve(schema, values, selector.Key, to).Values

					for _, key := range descendants {
						field, _ := schema.Field(key)
						if !model.Equal(values[key], field.DefaultValue()) {
							t.Fatalf("%s: switching %s from %v to %v left %s=%v", kind, selector.Key, from, to, key, values[key])
						}
					}
				}
			}
		}
	}
}

// reveal picks ancestor values, root first, that make key visible.
func reveal(t *testing.T, r *Resolver, schema *model.Schema, key string) model.Values {
	t.Helper()
	var chain []string
	field, _ := schema.Field(key)
	for field.Parent != "" {
		chain = append([]string{field.Parent}, chain...)
		field, _ = schema.Field(field.Parent)
	}
	chain = append(chain, key)

	values := schema.Defaults()
	for i := 0; i < len(chain)-1; i++ {
		ancestor, _ := schema.Field(chain[i])
		candidates := selectorChoices(ancestor)
		if value, ok := sample(r, schema, values, ancestor); ok {
			candidates = append(candidates, value)
		}
		found := false
		for _, candidate := range candidates {
			next := r.Resolve(schema, values, ancestor.Key, candidate).Values
			if r.VisibleSet(schema, next)[chain[i+1]] {
				values, found = next, true
				break
			}
		}
		if !found {
			t.Fatalf("%s: no value of %s reveals %s", schema.Kind(), ancestor.Key, chain[i+1])
		}
	}
	return values
}

func TestYouthHouseVenueSwitchClearsPreviousSelections(t *testing.T) {
	t.Parallel()

	r := New()
	schema := loadSchema(t, model.FormKindYouthHouse)
	values := schema.Defaults()
	for _, edit := range []struct {
		key   string
		value any
	}{
		{"venueType", "youthCenter"},
		{"youthCenter", "centerNorth"},
		{"youthCenterHall", "theater"},
		{"activityType", "sports"},
		{"ageGroup", "teenagers"},
	} {
		values = r.Resolve(schema, values, edit.key, edit.value).Values
	}

	res := r.Resolve(schema, values, "venueType", "sportComplex")
	for _, key := range []string{"youthCenter", "youthCenterHall"} {
		if got := res.Values[key]; got != "" {
			t.Fatalf("expected %s to be reset, got %v", key, got)
		}
	}
	if got := res.Values["ageGroup"]; got != "teenagers" {
		t.Fatalf("unrelated branch must survive, got ageGroup=%v", got)
	}
	wantVisible := []string{"sportComplex"}
	for _, key := range wantVisible {
		if !res.IsVisible(key) {
			t.Fatalf("expected %s to be visible", key)
		}
	}
	for _, key := range []string{"youthCenter", "youthCenterHall", "sportFacilityType"} {
		if res.IsVisible(key) {
			t.Fatalf("expected %s to be hidden", key)
		}
	}
}

func TestFacilityOptionsFollowFacilityType(t *testing.T) {
	t.Parallel()

	r := New()
	schema := loadSchema(t, model.FormKindSportsComplex)
	values := r.Resolve(schema, schema.Defaults(), "facilityType", "court").Values

	wantCourt := []string{"football", "basketball", "volleyball", "tennis", "handball"}
	if diff := cmp.Diff(wantCourt, r.Options(schema, values, "facilityOption")); diff != "" {
		t.Fatalf("court options mismatch (-want +got):\n%s", diff)
	}

	values = r.Resolve(schema, values, "facilityOption", "tennis").Values
	values = r.Resolve(schema, values, "courtLighting", true).Values
	res := r.Resolve(schema, values, "facilityType", "hall")

	if got := res.Values["facilityOption"]; got != "" {
		t.Fatalf("expected court sub-option to be cleared, got %v", got)
	}
	if got := res.Values["courtLighting"]; got != false {
		t.Fatalf("expected courtLighting to be reset, got %v", got)
	}
	wantHall := []string{"gym", "fitness", "martialArts", "dance"}
	if diff := cmp.Diff(wantHall, r.Options(schema, res.Values, "facilityOption")); diff != "" {
		t.Fatalf("hall options mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveSameValueKeepsDependents(t *testing.T) {
	t.Parallel()

	r := New()
	schema := loadSchema(t, model.FormKindSportsComplex)
	values := r.Resolve(schema, schema.Defaults(), "facilityType", "pool").Values
	values = r.Resolve(schema, values, "poolLanes", "4").Values

	res := r.Resolve(schema, values, "facilityType", "pool")
	if got := res.Values["poolLanes"]; got != "4" {
		t.Fatalf("re-selecting the same value must not reset dependents, got %v", got)
	}
}

func TestResolveIgnoresUnknownAndDerivedKeys(t *testing.T) {
	t.Parallel()

	r := New()
	schema := loadSchema(t, model.FormKindSportsComplex)
	values := r.Resolve(schema, schema.Defaults(), "period", model.DateRange{From: "2026-01-20", To: "2026-01-21"}).Values

	unknown := r.Resolve(schema, values, "ghost", "x")
	if _, ok := unknown.Values["ghost"]; ok {
		t.Fatalf("unknown key must not be stored")
	}
	derived := r.Resolve(schema, values, "days", 99)
	if got := derived.Values["days"]; got != 0 {
		t.Fatalf("derived key must not be settable, got %v", got)
	}
	if diff := cmp.Diff(values, derived.Values); diff != "" {
		t.Fatalf("values changed (-want +got):\n%s", diff)
	}
}

func TestSettleResetsHiddenValues(t *testing.T) {
	t.Parallel()

	r := New()
	schema := loadSchema(t, model.FormKindInvestment)
	res := r.Settle(schema, model.Values{
		"applicantType": "individual",
		"fullName":      "Dardan Berisha",
		"companyName":   "Stale Corp",
		"sectorOther":   "stale",
		"unknownField":  "ignored",
	})
	if got := res.Values["companyName"]; got != "" {
		t.Fatalf("expected hidden companyName to be reset, got %v", got)
	}
	if got := res.Values["sectorOther"]; got != "" {
		t.Fatalf("expected hidden sectorOther to be reset, got %v", got)
	}
	if got := res.Values["fullName"]; got != "Dardan Berisha" {
		t.Fatalf("expected visible fullName to survive, got %v", got)
	}
	if _, ok := res.Values["unknownField"]; ok {
		t.Fatalf("unknown keys must be dropped")
	}
}

func TestSignupCELVisibility(t *testing.T) {
	t.Parallel()

	r := New()
	schema := loadSchema(t, model.FormKindSignup)
	res := r.Resolve(schema, schema.Defaults(), "accountType", "delegate")
	for _, key := range []string{"delegateName", "delegateRole", "organizationCode"} {
		if !res.IsVisible(key) {
			t.Fatalf("expected %s to be visible", key)
		}
	}
	if res.IsVisible("organizationName") {
		t.Fatalf("expected organizationName to be hidden")
	}

	required := r.Required(schema, res.Values)
	want := []string{"accountType", "delegateName", "delegateRole", "organizationCode", "email", "phone", "password", "municipality", "attachment", "acceptTerms"}
	if diff := cmp.Diff(want, required); diff != "" {
		t.Fatalf("required keys mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluationErrorsHideField(t *testing.T) {
	t.Parallel()

	schema, err := model.NewSchema("broken", model.PredicateCEL, []model.FieldSpec{
		{Key: "a", Type: model.FieldTypeText},
		{Key: "b", Type: model.FieldTypeText, Parent: "a", When: `values.a.size() > "x"`},
	}, model.ValidationSpec{})
	if err != nil {
		t.Fatalf("NewSchema returned error: %v", err)
	}
	res := New().Resolve(schema, schema.Defaults(), "a", "abc")
	if res.IsVisible("b") {
		t.Fatalf("expected failing rule to hide its field")
	}
}

func TestExtrasReachRules(t *testing.T) {
	t.Parallel()

	schema, err := model.NewSchema("extras", model.PredicateExpr, []model.FieldSpec{
		{Key: "a", Type: model.FieldTypeText},
		{Key: "b", Type: model.FieldTypeText, Parent: "a", When: `a && extras.lang == "sq"`},
	}, model.ValidationSpec{})
	if err != nil {
		t.Fatalf("NewSchema returned error: %v", err)
	}
	values := model.Values{"a": "x"}
	if New(WithExtras(map[string]any{"lang": "en"})).VisibleSet(schema, values)["b"] {
		t.Fatalf("expected b to be hidden for lang=en")
	}
	if !New(WithExtras(map[string]any{"lang": "sq"})).VisibleSet(schema, values)["b"] {
		t.Fatalf("expected b to be visible for lang=sq")
	}
}
