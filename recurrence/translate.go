package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// ErrUnsupportedRule marks rules the target platform cannot represent.
// Callers fall back to materializing every occurrence individually.
var ErrUnsupportedRule = errors.New("recurrence rule not representable on the target platform")

// Tokens with no platform equivalent; their presence rejects the whole rule.
var forbiddenTokens = []string{"BYSETPOS", "BYWEEKNO", "BYYEARDAY", "WKST"}

// ToDiscrete converts an RFC5545 RRULE string into the platform's discrete
// recurrence model. seriesStart supplies the calendar month/day for YEARLY
// rules that omit BYMONTH/BYMONTHDAY. maxOccurrences caps the occurrence
// count regardless of the rule's own COUNT: the platform materializes
// concrete future occurrences rather than an open-ended series, so the
// compression is deliberately lossy. UNTIL is ignored for the same reason.
func ToDiscrete(rule string, seriesStart time.Time, maxOccurrences int) mo.Result[DiscreteRecurrence] {
	normalized := normalizeRule(rule)
	if normalized == "" {
		return unsupported("empty rule")
	}
	if tok := firstForbiddenToken(normalized); tok != "" {
		return unsupported("%s has no platform equivalent", tok)
	}
	if !strings.Contains(normalized, "FREQ=") {
		return mo.Err[DiscreteRecurrence](fmt.Errorf("parse rule %q: missing FREQ", rule))
	}

	opt, err := rrule.StrToROption(normalized)
	if err != nil {
		return mo.Err[DiscreteRecurrence](fmt.Errorf("parse rule %q: %w", rule, err))
	}

	plain, offsets := splitWeekdays(opt.Byweekday)

	rec := DiscreteRecurrence{
		Interval:        opt.Interval,
		OccurrenceLimit: occurrenceLimit(opt.Count, maxOccurrences),
	}
	if rec.Interval < 1 {
		rec.Interval = 1
	}

	switch opt.Freq {
	case rrule.DAILY:
		if len(offsets) > 0 {
			return unsupported("offset weekdays require a monthly rule")
		}
		if len(opt.Bymonth) > 0 || len(opt.Bymonthday) > 0 {
			return unsupported("DAILY rules cannot carry month restrictions")
		}
		rec.Frequency = FreqDaily
		rec.ByWeekday = plain

	case rrule.WEEKLY:
		if len(offsets) > 0 {
			return unsupported("offset weekdays require a monthly rule")
		}
		if len(plain) > 1 {
			return unsupported("WEEKLY rules allow at most one weekday")
		}
		if len(opt.Bymonth) > 0 || len(opt.Bymonthday) > 0 {
			return unsupported("WEEKLY rules cannot carry month restrictions")
		}
		rec.Frequency = FreqWeekly
		rec.ByWeekday = plain

	case rrule.MONTHLY:
		if len(opt.Bymonthday) > 0 {
			return unsupported("MONTHLY rules support only Nth-weekday patterns, not day-of-month")
		}
		if len(plain) > 0 || len(offsets) == 0 {
			return unsupported("MONTHLY rules require offset weekdays such as BYDAY=2MO")
		}
		if len(opt.Bymonth) > 0 {
			return unsupported("MONTHLY rules cannot restrict months")
		}
		rec.Frequency = FreqMonthly
		rec.ByNWeekday = offsets

	case rrule.YEARLY:
		if len(plain) > 0 || len(offsets) > 0 {
			return unsupported("YEARLY rules cannot carry weekday restrictions")
		}
		rec.Frequency = FreqYearly
		rec.ByMonth = opt.Bymonth
		rec.ByMonthDay = opt.Bymonthday
		// The platform needs a concrete calendar date; derive it from the
		// series start when the rule leaves it implicit.
		if len(rec.ByMonth) == 0 {
			rec.ByMonth = []int{int(seriesStart.Month())}
		}
		if len(rec.ByMonthDay) == 0 {
			rec.ByMonthDay = []int{seriesStart.Day()}
		}

	default:
		return unsupported("frequency %v is below the platform's granularity", opt.Freq)
	}

	normalizeOrder(&rec)
	return mo.Ok(rec)
}

// ToRuleString renders the discrete recurrence back into a canonical RRULE
// string, used when a platform-native event is reflected into the system of
// record. The output omits a redundant INTERVAL=1 and renders positive
// BYDAY offsets without a plus sign; negative offsets keep theirs. A
// non-recurring description yields None. No COUNT is emitted: the
// occurrence limit is a materialization cap, not part of the pattern.
func ToRuleString(rec DiscreteRecurrence, seriesStart time.Time) mo.Option[string] {
	if rec.Frequency == FreqNone {
		return mo.None[string]()
	}

	parts := []string{"FREQ=" + freqToken(rec.Frequency)}
	if rec.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", rec.Interval))
	}

	var days []string
	for _, d := range rec.ByWeekday {
		days = append(days, d.String())
	}
	for _, n := range rec.ByNWeekday {
		days = append(days, n.String())
	}
	if len(days) > 0 {
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}

	if rec.Frequency == FreqYearly {
		months := rec.ByMonth
		monthDays := rec.ByMonthDay
		if len(months) == 0 {
			months = []int{int(seriesStart.Month())}
		}
		if len(monthDays) == 0 {
			monthDays = []int{seriesStart.Day()}
		}
		parts = append(parts, "BYMONTH="+joinInts(months))
		parts = append(parts, "BYMONTHDAY="+joinInts(monthDays))
	}

	return mo.Some(strings.Join(parts, ";"))
}

// MultiOccurrence reports whether a rule denotes more than a single
// occurrence. A rule that cannot be parsed is treated as multi-occurrence so
// that series handling still gets a chance to degrade gracefully.
func MultiOccurrence(rule string) bool {
	normalized := normalizeRule(rule)
	if normalized == "" {
		return false
	}
	opt, err := rrule.StrToROption(normalized)
	if err != nil {
		return true
	}
	return opt.Count != 1
}

func unsupported(format string, args ...any) mo.Result[DiscreteRecurrence] {
	return mo.Err[DiscreteRecurrence](fmt.Errorf("%w: %s", ErrUnsupportedRule, fmt.Sprintf(format, args...)))
}

// normalizeRule uppercases the rule, strips whitespace and an optional
// "RRULE:" property prefix. Token parsing is case-insensitive per RFC5545.
func normalizeRule(rule string) string {
	s := strings.ToUpper(strings.TrimSpace(rule))
	s = strings.TrimPrefix(s, "RRULE:")
	return strings.ReplaceAll(s, " ", "")
}

func firstForbiddenToken(rule string) string {
	for _, part := range strings.Split(rule, ";") {
		key, _, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		for _, tok := range forbiddenTokens {
			if key == tok {
				return tok
			}
		}
	}
	return ""
}

// splitWeekdays separates plain weekdays from offset ("Nth") references.
func splitWeekdays(days []rrule.Weekday) ([]Weekday, []NthWeekday) {
	var plain []Weekday
	var offsets []NthWeekday
	for _, d := range days {
		if d.N() == 0 {
			plain = append(plain, Weekday(d.Day()))
		} else {
			offsets = append(offsets, NthWeekday{Day: Weekday(d.Day()), N: d.N()})
		}
	}
	return plain, offsets
}

// occurrenceLimit applies the platform cap over the rule's own COUNT.
func occurrenceLimit(count, maxOccurrences int) int {
	limit := count
	if maxOccurrences > 0 && (limit <= 0 || limit > maxOccurrences) {
		limit = maxOccurrences
	}
	return limit
}

// normalizeOrder sorts the BY* lists so that equal patterns compare equal
// regardless of token order in the source rule.
func normalizeOrder(rec *DiscreteRecurrence) {
	sort.Slice(rec.ByWeekday, func(i, j int) bool { return rec.ByWeekday[i] < rec.ByWeekday[j] })
	sort.Slice(rec.ByNWeekday, func(i, j int) bool {
		a, b := rec.ByNWeekday[i], rec.ByNWeekday[j]
		if a.N != b.N {
			return a.N < b.N
		}
		return a.Day < b.Day
	})
	sort.Ints(rec.ByMonth)
	sort.Ints(rec.ByMonthDay)
}

func freqToken(f Frequency) string {
	switch f {
	case FreqDaily:
		return "DAILY"
	case FreqWeekly:
		return "WEEKLY"
	case FreqMonthly:
		return "MONTHLY"
	case FreqYearly:
		return "YEARLY"
	default:
		return ""
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}
