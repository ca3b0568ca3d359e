// Package recurrence translates RFC5545 RRULE strings to and from the
// discrete, capability-limited recurrence model of the target platform.
// Translation is pure: no I/O, no clocks, no platform state.
package recurrence

import "strconv"

// Frequency is the target platform's recurrence frequency.
type Frequency int

const (
	FreqNone Frequency = iota // not recurring
	FreqDaily
	FreqWeekly
	FreqMonthly
	FreqYearly
)

// String provides a human-readable representation of the Frequency.
func (f Frequency) String() string {
	switch f {
	case FreqDaily:
		return "Daily"
	case FreqWeekly:
		return "Weekly"
	case FreqMonthly:
		return "Monthly"
	case FreqYearly:
		return "Yearly"
	default:
		return "None"
	}
}

// Weekday follows the RRULE numbering: Monday is 0, Sunday is 6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayTokens = [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

// String returns the two-letter RRULE token for the weekday.
func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "??"
	}
	return weekdayTokens[d]
}

// NthWeekday is an offset weekday reference such as "second Monday" or
// "last Friday". Negative N counts from the end of the period.
type NthWeekday struct {
	Day Weekday
	N   int
}

// String renders the BYDAY token form, e.g. "2MO" or "-1FR".
func (n NthWeekday) String() string {
	return strconv.Itoa(n.N) + n.Day.String()
}

// DiscreteRecurrence is the platform-side recurrence description. It is
// strictly less expressive than RFC5545: no BYSETPOS, BYWEEKNO, BYYEARDAY,
// custom week start, multi-weekday WEEKLY patterns, or MONTHLY
// day-of-month rules.
type DiscreteRecurrence struct {
	Frequency Frequency
	// Interval between periods; 1 means every period.
	Interval int
	// OccurrenceLimit caps how many concrete future occurrences the
	// platform materializes. The upstream rule stays the source of truth
	// and is re-applied every pass.
	OccurrenceLimit int
	// ByWeekday restricts DAILY and WEEKLY rules to plain weekdays.
	ByWeekday []Weekday
	// ByNWeekday holds "Nth weekday of the month" references for MONTHLY.
	ByNWeekday []NthWeekday
	// ByMonth and ByMonthDay pin YEARLY rules to calendar dates.
	ByMonth    []int
	ByMonthDay []int
}

// Equal reports whether two recurrence descriptions have the same shape,
// ignoring the occurrence limit (a materialization artifact, not part of
// the pattern itself).
func (r DiscreteRecurrence) Equal(other DiscreteRecurrence) bool {
	if r.Frequency != other.Frequency || r.Interval != other.Interval {
		return false
	}
	if len(r.ByWeekday) != len(other.ByWeekday) ||
		len(r.ByNWeekday) != len(other.ByNWeekday) ||
		len(r.ByMonth) != len(other.ByMonth) ||
		len(r.ByMonthDay) != len(other.ByMonthDay) {
		return false
	}
	for i, d := range r.ByWeekday {
		if other.ByWeekday[i] != d {
			return false
		}
	}
	for i, n := range r.ByNWeekday {
		if other.ByNWeekday[i] != n {
			return false
		}
	}
	for i, m := range r.ByMonth {
		if other.ByMonth[i] != m {
			return false
		}
	}
	for i, m := range r.ByMonthDay {
		if other.ByMonthDay[i] != m {
			return false
		}
	}
	return true
}
