package window

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies one of the supported window cadences.
type Kind string

const (
	// KindHourly resets at the top of every UTC hour.
	KindHourly Kind = "hourly"

	// KindDaily resets at UTC midnight.
	KindDaily Kind = "daily"

	// KindWeekly resets Monday 00:00 UTC, ISO-8601 week numbering.
	KindWeekly Kind = "weekly"

	// KindMonthly resets on the first of the next UTC month.
	KindMonthly Kind = "monthly"
)

// ErrInvalidKind is returned when a Kind is not one of the declared
// constants. This is a programmer error: kinds reaching the keyer are
// expected to have been validated at configuration load.
var ErrInvalidKind = errors.New("invalid window kind")

// Kinds returns all supported window kinds in ascending cadence order.
func Kinds() []Kind {
	return []Kind{KindHourly, KindDaily, KindWeekly, KindMonthly}
}

// Valid reports whether k is a declared window kind.
func (k Kind) Valid() bool {
	switch k {
	case KindHourly, KindDaily, KindWeekly, KindMonthly:
		return true
	}
	return false
}

// Duration returns the nominal length of the window. Monthly windows are
// approximated at 30 days; the value is used for TTLs and age estimation,
// not for boundary computation.
func (k Kind) Duration() time.Duration {
	switch k {
	case KindHourly:
		return time.Hour
	case KindDaily:
		return 24 * time.Hour
	case KindWeekly:
		return 7 * 24 * time.Hour
	case KindMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// KeyFor returns the canonical window identifier containing now and the
// instant at which that window ends. The result is deterministic and
// computed entirely in UTC.
//
// Identifier formats:
//
//	hourly   2025-06-24-14
//	daily    2025-06-24
//	weekly   2025-W26
//	monthly  2025-06
func KeyFor(kind Kind, now time.Time) (string, time.Time, error) {
	t := now.UTC()

	switch kind {
	case KindHourly:
		start := t.Truncate(time.Hour)
		return t.Format("2006-01-02-15"), start.Add(time.Hour), nil

	case KindDaily:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return t.Format("2006-01-02"), start.AddDate(0, 0, 1), nil

	case KindWeekly:
		// ISO week: the week owns its Thursday. time.ISOWeek already
		// anchors on Thursday, so year-boundary weeks (including week
		// 53) come out right without day-of-year arithmetic.
		year, week := t.ISOWeek()
		id := fmt.Sprintf("%04d-W%02d", year, week)

		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		sinceMonday := (int(t.Weekday()) + 6) % 7
		weekStart := midnight.AddDate(0, 0, -sinceMonday)
		return id, weekStart.AddDate(0, 0, 7), nil

	case KindMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return t.Format("2006-01"), start.AddDate(0, 1, 0), nil
	}

	return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
}

// StartOf parses a window identifier back into the window's start instant.
// It recognizes the hourly, daily, and monthly formats. Weekly identifiers
// ("2025-W26") are not parsed: legacy weekly entries carried no other
// timestamp, so their age is unknown (see counter sweep, which skips them
// rather than guessing).
func StartOf(id string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02-15", "2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, id); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
