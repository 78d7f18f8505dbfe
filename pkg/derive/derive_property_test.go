package derive

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDaysBetweenProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	date := func(offset int) string { return base.AddDate(0, 0, offset).Format(dateLayout) }

	properties.Property("day count is never negative", prop.ForAll(
		func(from, to string, inclusive bool) bool {
			return DaysBetween(from, to, inclusive) >= 0
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.Bool(),
	))

	properties.Property("inclusive count is the exclusive count plus one", prop.ForAll(
		func(start, length int) bool {
			from, to := date(start), date(start+length)
			return DaysBetween(from, to, true) == DaysBetween(from, to, false)+1
		},
		gen.IntRange(-400, 400),
		gen.IntRange(0, 800),
	))

	properties.Property("exclusive count equals the calendar distance", prop.ForAll(
		func(start, length int) bool {
			return DaysBetween(date(start), date(start+length), false) == length
		},
		gen.IntRange(-400, 400),
		gen.IntRange(0, 800),
	))

	properties.TestingRun(t)
}

func TestHoursBetweenProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	clock := func(minutes int) string { return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60) }

	properties.Property("hour count is never negative", prop.ForAll(
		func(start, end string) bool {
			return HoursBetween(start, end) >= 0
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("hour count floors the minute distance", prop.ForAll(
		func(a, b int) bool {
			got := HoursBetween(clock(a), clock(b))
			if b < a {
				return got == 0
			}
			return got == (b-a)/60
		},
		gen.IntRange(0, 24*60-1),
		gen.IntRange(0, 24*60-1),
	))

	properties.TestingRun(t)
}
