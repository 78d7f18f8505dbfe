// Package derive computes read-only fields from other field values: the
// number of days covered by a booking period and the number of whole hours
// between two times of day. Every function is total; unusable input yields 0.
package derive

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-formengine/pkg/model"
)

const (
	dateLayout    = "2006-01-02"
	secondsPerDay = 24 * 60 * 60
)

// DaysBetween returns the number of days from `from` to `to`. Partial days
// round up. With inclusive set a single-day booking counts as 1, otherwise
// as 0. Missing or malformed endpoints and reversed ranges give 0.
func DaysBetween(from, to string, inclusive bool) int {
	start, ok := parseDate(from)
	if !ok {
		return 0
	}
	end, ok := parseDate(to)
	if !ok {
		return 0
	}
	diff := end.Unix() - start.Unix()
	if diff < 0 {
		return 0
	}
	days := int((diff + secondsPerDay - 1) / secondsPerDay)
	if inclusive {
		days++
	}
	return days
}

// HoursBetween returns the whole hours between two `HH:MM` times on the same
// day. Malformed input or an end before the start gives 0.
func HoursBetween(start, end string) int {
	from, ok := ParseClock(start)
	if !ok {
		return 0
	}
	to, ok := ParseClock(end)
	if !ok || to < from {
		return 0
	}
	return (to - from) / 60
}

// Engine evaluates the derived fields declared by a schema.
type Engine struct{}

// New returns a derivation engine.
func New() *Engine {
	return &Engine{}
}

// Derive returns the value of every derived field in schema for values.
func (e *Engine) Derive(schema *model.Schema, values model.Values) map[string]int {
	out := make(map[string]int)
	for _, field := range schema.Fields() {
		if field.Derive == nil {
			continue
		}
		out[field.Key] = e.derive(schema, field.Derive, values)
	}
	return out
}

func (e *Engine) derive(schema *model.Schema, spec *model.DerivedSpec, values model.Values) int {
	from, to := endpoints(schema, spec.Inputs, values)
	switch spec.Fn {
	case model.DeriveDaysBetween:
		return DaysBetween(from, to, spec.Inclusive)
	case model.DeriveHoursBetween:
		return HoursBetween(from, to)
	default:
		return 0
	}
}

// endpoints reads the (from, to) pair either from a single dateRange input or
// from two scalar inputs.
func endpoints(schema *model.Schema, inputs []string, values model.Values) (string, string) {
	switch len(inputs) {
	case 1:
		field, _ := schema.Field(inputs[0])
		period, _ := model.Normalize(field.Type, values[inputs[0]]).(model.DateRange)
		return period.From, period.To
	case 2:
		return values.String(inputs[0]), values.String(inputs[1])
	default:
		return "", ""
	}
}

func parseDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(dateLayout, trimmed); err == nil {
		return parsed, true
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

// ParseClock converts a two-digit HH:MM time into minutes past midnight.
// Single-digit hours, seconds and out-of-range values are rejected.
func ParseClock(value string) (int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found || len(hh) != 2 || len(mm) != 2 {
		return 0, false
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return 0, false
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, false
	}
	return hours*60 + minutes, true
}
