package expr

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/visibility"
)

func TestEvaluatorRules(t *testing.T) {
	t.Parallel()

	values := map[string]any{
		"venueType":     "youthCenter",
		"withEquipment": true,
		"participants":  "12",
		"period":        model.DateRange{From: "2026-01-20", To: ""},
		"attachment":    (*model.FileRef)(nil),
		"notes":         "",
	}

	cases := []struct {
		rule string
		want bool
	}{
		{rule: `venueType == "youthCenter"`, want: true},
		{rule: `venueType == 'youthCenter'`, want: true},
		{rule: `venueType == youthCenter`, want: true},
		{rule: `venueType != "sportComplex"`, want: true},
		{rule: `venueType in ("sportComplex", "youthCenter")`, want: true},
		{rule: `venueType in ("court")`, want: false},
		{rule: `withEquipment`, want: true},
		{rule: `!withEquipment`, want: false},
		{rule: `withEquipment == true && participants == 12`, want: true},
		{rule: `participants == 13 || venueType == "youthCenter"`, want: true},
		{rule: `!(withEquipment && notes)`, want: true},
		{rule: `period`, want: false},
		{rule: `period.from == "2026-01-20"`, want: true},
		{rule: `attachment == null`, want: true},
		{rule: `notes == null`, want: true},
		{rule: `missing`, want: false},
		{rule: `extras.lang == "sq"`, want: true},
		{rule: ``, want: true},
	}

	eval := New()
	for _, tc := range cases {
		got, err := eval.Eval("target", tc.rule, visibility.Context{
			Values: values,
			Extras: map[string]any{"lang": "sq"},
		})
		if err != nil {
			t.Fatalf("Eval(%q) returned error: %v", tc.rule, err)
		}
		if got != tc.want {
			t.Fatalf("Eval(%q) = %v, want %v", tc.rule, got, tc.want)
		}
	}
}

func TestEvaluatorErrors(t *testing.T) {
	t.Parallel()

	eval := New()
	for _, rule := range []string{
		`venueType = "x"`,
		`venueType == "unterminated`,
		`(venueType == "x"`,
		`venueType in "x"`,
		`venueType in ()`,
		`== "x"`,
		`venueType == `,
		`a & b`,
	} {
		if err := eval.Check(rule); err == nil {
			t.Fatalf("expected Check(%q) to fail", rule)
		}
	}
}

func TestCompileIdentifiers(t *testing.T) {
	t.Parallel()

	prog, err := Compile(`venueType == "youthCenter" && (youthCenter || period.from) && extras.lang == "en" && venueType`)
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	want := []string{"venueType", "youthCenter", "period"}
	if diff := cmp.Diff(want, prog.Identifiers()); diff != "" {
		t.Fatalf("identifiers mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluatorCachesPrograms(t *testing.T) {
	t.Parallel()

	eval := New()
	if err := eval.Check(`a == "x"`); err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if err := eval.Check(`  a == "x"  `); err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if got := len(eval.cache); got != 1 {
		t.Fatalf("expected a single cached program, got %d", got)
	}
}
