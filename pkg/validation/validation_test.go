package validation

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/registry"
)

func mustSchema(t *testing.T, kind model.FormKind) *model.Schema {
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

func validSignup() model.Values {
	return model.Values{
		"accountType":        "organization",
		"organizationName":   "Youth Chess Club",
		"organizationType":   "club",
		"registrationNumber": "123456",
		"email":              "club@example.org",
		"phone":              "+383 44 123 456",
		"password":           "correct-horse",
		"municipality":       "prishtina",
		"attachment":         &model.FileRef{Name: "statute.pdf", Size: 120_000, MIMEType: "application/pdf"},
		"acceptTerms":        true,
	}
}

func TestValidateSignupValid(t *testing.T) {
	t.Parallel()

	errs := New().Validate(mustSchema(t, model.FormKindSignup), validSignup())
	if !errs.Valid() {
		t.Fatalf("expected no errors, got %+v", errs)
	}
}

func TestValidateAttachmentRules(t *testing.T) {
	t.Parallel()

	schema := mustSchema(t, model.FormKindSignup)
	engine := New()

	values := validSignup()
	values["attachment"] = &model.FileRef{Name: "notes.txt", Size: 10, MIMEType: "text/plain"}
	errs := engine.Validate(schema, values)
	got, ok := errs["attachment"]
	if !ok {
		t.Fatalf("expected attachment error, got %+v", errs)
	}
	if got.Code != CodeMIMEType {
		t.Fatalf("expected code %q, got %q", CodeMIMEType, got.Code)
	}
	for _, mime := range DefaultMIMETypes {
		if !strings.Contains(got.Message, mime) {
			t.Fatalf("expected message to name %s, got %q", mime, got.Message)
		}
	}

	values["attachment"] = &model.FileRef{Name: "scan.png", Size: 5_000_001, MIMEType: "image/png"}
	errs = engine.Validate(schema, values)
	if errs["attachment"].Code != CodeFileSize {
		t.Fatalf("expected file size error, got %+v", errs)
	}
	if errs["attachment"].Message == got.Message {
		t.Fatalf("expected size and type errors to use distinct messages")
	}

	values["attachment"] = &model.FileRef{Name: "statute.pdf", Size: 5_000_000, MIMEType: "application/pdf"}
	if errs := engine.Validate(schema, values); !errs.Valid() {
		t.Fatalf("expected pdf at the size limit to pass, got %+v", errs)
	}
}

func TestValidateSkipsHiddenFields(t *testing.T) {
	t.Parallel()

	schema := mustSchema(t, model.FormKindSignup)
	values := validSignup()
	values["accountType"] = "delegate"
	// Stale organization values are hidden now and must not be reported.
	values["registrationNumber"] = "not-a-number"

	errs := New().Validate(schema, values)
	want := ErrorMap{
		"delegateName":     {Code: CodeRequired, Message: "Delegate name is required"},
		"delegateRole":     {Code: CodeRequired, Message: "Role is required"},
		"organizationCode": {Code: CodeRequired, Message: "Organization code is required"},
	}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateFirstFailingRuleWins(t *testing.T) {
	t.Parallel()

	schema := mustSchema(t, model.FormKindSignup)
	engine := New()

	cases := []struct {
		name   string
		key    string
		value  any
		want   string
		wantOK bool
	}{
		{name: "empty password", key: "password", value: "", want: CodeRequired, wantOK: true},
		{name: "short password", key: "password", value: "abc", want: CodeTooShort, wantOK: true},
		{name: "long password", key: "password", value: strings.Repeat("x", 65), want: CodeTooLong, wantOK: true},
		{name: "bad email", key: "email", value: "club@", want: CodeEmail, wantOK: true},
		{name: "bad phone", key: "phone", value: "call me", want: CodePhone, wantOK: true},
		{name: "registration letters", key: "registrationNumber", value: "12a", want: CodeInteger, wantOK: true},
		{name: "registration too long", key: "registrationNumber", value: "1234567890", want: CodeInteger, wantOK: true},
		{name: "unknown municipality", key: "municipality", value: "atlantis", want: CodeEnum, wantOK: true},
		{name: "terms declined", key: "acceptTerms", value: false, want: CodeRequired, wantOK: true},
		{name: "valid email", key: "email", value: "a@b.co"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values := validSignup()
			values[tc.key] = tc.value
			got, ok := engine.ValidateField(schema, values, tc.key)
			if ok != tc.wantOK {
				t.Fatalf("ValidateField(%s) failed=%v, want %v (%+v)", tc.key, ok, tc.wantOK, got)
			}
			if got.Code != tc.want {
				t.Fatalf("ValidateField(%s) code = %q, want %q", tc.key, got.Code, tc.want)
			}
		})
	}

	values := validSignup()
	values["acceptTerms"] = false
	if got := engine.Validate(schema, values)["acceptTerms"].Message; got != "the terms must be accepted" {
		t.Fatalf("expected custom message, got %q", got)
	}
}

func TestValidateDynamicOptionsAndOrdering(t *testing.T) {
	t.Parallel()

	schema := mustSchema(t, model.FormKindSportsComplex)
	values := model.Values{
		"fullName":       "Arta Krasniqi",
		"email":          "arta@example.org",
		"phone":          "044123456",
		"sportComplex":   "cityArena",
		"facilityType":   "hall",
		"facilityOption": "football",
		"period":         model.DateRange{From: "2026-01-22", To: "2026-01-20"},
		"startTime":      "11:00",
		"endTime":        "09:00",
		"participants":   "20",
		"purpose":        "training",
	}

	errs := New().Validate(schema, values)
	want := map[string]string{
		"facilityOption": CodeEnum,
		"period":         CodeDateOrder,
		"endTime":        CodeTimeOrder,
	}
	got := map[string]string{}
	for key, fieldErr := range errs {
		got[key] = fieldErr.Code
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("error codes mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(errs["facilityOption"].Message, "gym") {
		t.Fatalf("expected hall options in message, got %q", errs["facilityOption"].Message)
	}
}

func TestValidateBranchRules(t *testing.T) {
	t.Parallel()

	schema := mustSchema(t, model.FormKindSportsComplex)
	base := model.Values{
		"fullName":       "Arta Krasniqi",
		"email":          "arta@example.org",
		"phone":          "044123456",
		"sportComplex":   "olympicPool",
		"facilityType":   "pool",
		"facilityOption": "olympic",
		"period":         model.DateRange{From: "2026-01-20", To: "2026-01-20"},
		"startTime":      "09:00",
		"endTime":        "11:30",
		"participants":   "20",
		"purpose":        "competition",
	}

	errs := New().Validate(schema, base)
	if diff := cmp.Diff([]string{"eventName", "poolLanes"}, errs.Keys()); diff != "" {
		t.Fatalf("error keys mismatch (-want +got):\n%s", diff)
	}

	base["purpose"] = "training"
	base["poolLanes"] = "4"
	if errs := New().Validate(schema, base); !errs.Valid() {
		t.Fatalf("expected no errors, got %+v", errs)
	}
}

func TestValidateTimeFormat(t *testing.T) {
	t.Parallel()

	base := model.Values{
		"fullName":       "Arta Krasniqi",
		"email":          "arta@example.org",
		"phone":          "044123456",
		"sportComplex":   "olympicPool",
		"facilityType":   "pool",
		"facilityOption": "olympic",
		"period":         model.DateRange{From: "2026-01-20", To: "2026-01-20"},
		"participants":   "20",
		"purpose":        "training",
		"poolLanes":      "4",
	}

	cases := []struct {
		name       string
		start, end string
		want       map[string]string
	}{
		{name: "valid", start: "09:00", end: "11:30", want: map[string]string{}},
		{name: "words", start: "soon", end: "later", want: map[string]string{"startTime": CodeTime, "endTime": CodeTime}},
		{name: "single digit hours", start: "9:00", end: "11:30", want: map[string]string{"startTime": CodeTime}},
		{name: "single digit end", start: "09:00", end: "9:30", want: map[string]string{"endTime": CodeTime}},
		{name: "out of range", start: "09:00", end: "24:00", want: map[string]string{"endTime": CodeTime}},
		{name: "end before start", start: "11:00", end: "09:00", want: map[string]string{"endTime": CodeTimeOrder}},
	}

	schema := mustSchema(t, model.FormKindSportsComplex)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			values := base.Clone()
			values["startTime"] = tc.start
			values["endTime"] = tc.end

			got := map[string]string{}
			for key, fieldErr := range New().Validate(schema, values) {
				got[key] = fieldErr.Code
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("error codes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateYouthHouseTimes(t *testing.T) {
	t.Parallel()

	schema := mustSchema(t, model.FormKindYouthHouse)
	for _, key := range []string{"startTime", "endTime"} {
		field, ok := schema.Field(key)
		if !ok {
			t.Fatalf("youth house form has no %s field", key)
		}
		values := model.Values{key: "soon"}
		if key == "endTime" {
			values["startTime"] = "09:00"
		}
		fieldErr, ok := New().Validate(schema, values)[key]
		if !ok || fieldErr.Code != CodeTime {
			t.Fatalf("%s (%s) = %+v, want code %s", key, field.Label, fieldErr, CodeTime)
		}
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	t.Parallel()

	schema := mustSchema(t, model.FormKindSignup)
	values := validSignup()
	values["accountType"] = "delegate"
	before := values.Clone()

	engine := New()
	first := engine.Validate(schema, values)
	second := engine.Validate(schema, values)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("validate is not idempotent (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(before, values); diff != "" {
		t.Fatalf("validate mutated values (-before +after):\n%s", diff)
	}
}
