package validation

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formengine/pkg/derive"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/resolver"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,19}$`)
	digits       = regexp.MustCompile(`^[0-9]+$`)
)

type input struct {
	schema   *model.Schema
	field    model.FieldSpec
	values   model.Values
	value    any
	rule     model.ValidationRule
	resolver *resolver.Resolver
}

func (in input) label() string {
	if in.field.Label != "" {
		return in.field.Label
	}
	return in.field.Key
}

func (in input) text() string {
	return strings.TrimSpace(model.Text(in.value))
}

func (in input) intParam(name string) (int, bool) {
	raw := in.rule.Param(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// check returns (code, message, failed).
type check func(in input) (string, string, bool)

var checks = map[string]check{
	model.RuleRequired:  checkRequired,
	model.RuleMaxLength: checkMaxLength,
	model.RuleMinLength: checkMinLength,
	model.RuleInteger:   checkInteger,
	model.RuleEnum:      checkEnum,
	model.RuleMIMETypes: checkMIMETypes,
	model.RuleMaxSize:   checkMaxSize,
	model.RuleEmail:     checkEmail,
	model.RulePhone:     checkPhone,
	model.RuleDateOrder: checkDateOrder,
	model.RuleTime:      checkTime,
	model.RuleTimeOrder: checkTimeOrder,
}

func checkRequired(in input) (string, string, bool) {
	if model.IsEmpty(in.value) {
		return CodeRequired, fmt.Sprintf("%s is required", in.label()), true
	}
	return "", "", false
}

func checkMaxLength(in input) (string, string, bool) {
	limit, ok := in.intParam("value")
	if !ok {
		return "", "", false
	}
	if utf8.RuneCountInString(in.text()) > limit {
		return CodeTooLong, fmt.Sprintf("%s must be at most %d characters", in.label(), limit), true
	}
	return "", "", false
}

func checkMinLength(in input) (string, string, bool) {
	limit, ok := in.intParam("value")
	if !ok {
		return "", "", false
	}
	if utf8.RuneCountInString(in.text()) < limit {
		return CodeTooShort, fmt.Sprintf("%s must be at least %d characters", in.label(), limit), true
	}
	return "", "", false
}

// checkInteger accepts digits only. `value` bounds the digit count from above
// and the optional `min` from below.
func checkInteger(in input) (string, string, bool) {
	text := in.text()
	if !digits.MatchString(text) {
		return CodeInteger, fmt.Sprintf("%s must contain digits only", in.label()), true
	}
	if limit, ok := in.intParam("value"); ok && len(text) > limit {
		return CodeInteger, fmt.Sprintf("%s must have at most %d digits", in.label(), limit), true
	}
	if limit, ok := in.intParam("min"); ok && len(text) < limit {
		return CodeInteger, fmt.Sprintf("%s must have at least %d digits", in.label(), limit), true
	}
	return "", "", false
}

// checkEnum uses the options active for the current values, so optionsBy
// fields only accept their parent's option set.
func checkEnum(in input) (string, string, bool) {
	options := in.resolver.Options(in.schema, in.values, in.field.Key)
	if values := in.rule.Param("values"); values != "" {
		options = splitList(values)
	}
	if len(options) == 0 {
		return "", "", false
	}
	if !slices.Contains(options, in.text()) {
		return CodeEnum, fmt.Sprintf("%s must be one of: %s", in.label(), strings.Join(options, ", ")), true
	}
	return "", "", false
}

func checkMIMETypes(in input) (string, string, bool) {
	file, ok := in.value.(*model.FileRef)
	if !ok || file == nil {
		return "", "", false
	}
	allowed := DefaultMIMETypes
	if types := in.rule.Param("types"); types != "" {
		allowed = splitList(types)
	}
	got := strings.ToLower(strings.TrimSpace(file.MIMEType))
	if i := strings.IndexByte(got, ';'); i >= 0 {
		got = strings.TrimSpace(got[:i])
	}
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, got) {
			return "", "", false
		}
	}
	return CodeMIMEType, fmt.Sprintf("%s must be one of the allowed file types: %s", in.label(), strings.Join(allowed, ", ")), true
}

func checkMaxSize(in input) (string, string, bool) {
	file, ok := in.value.(*model.FileRef)
	if !ok || file == nil {
		return "", "", false
	}
	limit, ok := in.intParam("value")
	if !ok {
		return "", "", false
	}
	if file.Size > int64(limit) {
		return CodeFileSize, fmt.Sprintf("%s must not exceed %d bytes", in.label(), limit), true
	}
	return "", "", false
}

func checkEmail(in input) (string, string, bool) {
	if !emailPattern.MatchString(in.text()) {
		return CodeEmail, fmt.Sprintf("%s must be a valid email address", in.label()), true
	}
	return "", "", false
}

func checkPhone(in input) (string, string, bool) {
	if !phonePattern.MatchString(in.text()) {
		return CodePhone, fmt.Sprintf("%s must be a valid phone number", in.label()), true
	}
	return "", "", false
}

// checkDateOrder requires a date range to end on or after its start, or a
// date to fall on or after the date held by the `from` field.
func checkDateOrder(in input) (string, string, bool) {
	var start, end string
	if other := in.rule.Param("from"); other != "" {
		start, end = in.values.String(other), in.text()
		if strings.TrimSpace(start) == "" {
			start = end
		}
	} else {
		period, ok := in.value.(model.DateRange)
		if !ok {
			return "", "", false
		}
		start, end = period.From, period.To
	}
	from, errFrom := time.Parse("2006-01-02", strings.TrimSpace(start))
	to, errTo := time.Parse("2006-01-02", strings.TrimSpace(end))
	if errFrom != nil || errTo != nil {
		return CodeDate, fmt.Sprintf("%s must be a valid date (YYYY-MM-DD)", in.label()), true
	}
	if to.Before(from) {
		return CodeDateOrder, fmt.Sprintf("%s must not end before it starts", in.label()), true
	}
	return "", "", false
}

func checkTime(in input) (string, string, bool) {
	if _, ok := derive.ParseClock(in.text()); !ok {
		return CodeTime, fmt.Sprintf("%s must be a valid time (HH:MM)", in.label()), true
	}
	return "", "", false
}

// checkTimeOrder requires the time to be later than the time held by the
// `from` field. A malformed start is left to that field's own time rule.
func checkTimeOrder(in input) (string, string, bool) {
	end, ok := derive.ParseClock(in.text())
	if !ok {
		return CodeTime, fmt.Sprintf("%s must be a valid time (HH:MM)", in.label()), true
	}
	other := in.rule.Param("from")
	if other == "" {
		return "", "", false
	}
	start, ok := derive.ParseClock(in.values.String(other))
	if !ok {
		return "", "", false
	}
	if end <= start {
		return CodeTimeOrder, fmt.Sprintf("%s must be later than the start time", in.label()), true
	}
	return "", "", false
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
