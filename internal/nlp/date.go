package nlp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// namedOffsets resolve fixed relative phrases to day offsets from "today".
// Ordered so longer phrases match before their substrings.
var namedOffsets = []struct {
	re     *regexp.Regexp
	offset int
}{
	{regexp.MustCompile(`(?i)\bday\s+after\s+tomorrow\b`), 2},
	{regexp.MustCompile(`(?i)\btomorrow\b`), 1},
	{regexp.MustCompile(`(?i)\btoday\b`), 0},
	{regexp.MustCompile(`(?i)\byesterday\b`), -1},
	{regexp.MustCompile(`(?i)\bnext\s+week\b`), 7},
	{regexp.MustCompile(`(?i)\bnext\s+month\b`), 30},
}

const weekdayNames = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`

var (
	nextWeekdayRe = regexp.MustCompile(`(?i)\bnext\s+(` + weekdayNames + `)\b`)
	thisWeekdayRe = regexp.MustCompile(`(?i)\bthis\s+(` + weekdayNames + `)\b`)
	bareWeekdayRe = regexp.MustCompile(`(?i)\b(` + weekdayNames + `)\b`)

	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	dashDateRe  = regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})-(\d{4})\b`)
	isoDateInRe = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)

	monthDateRe = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s*(\d{4}))?\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// extractDate resolves the first date phrase in the text to an ISO date.
// Precedence: named offsets, "next <weekday>", "this <weekday>", bare weekday,
// then explicit formats. Returns "" when nothing matches.
func extractDate(text string, now time.Time) string {
	today := truncateDay(now)

	for _, n := range namedOffsets {
		if n.re.MatchString(text) {
			return today.AddDate(0, 0, n.offset).Format(isoDate)
		}
	}

	if m := nextWeekdayRe.FindStringSubmatch(text); m != nil {
		return nextWeekday(today, weekdays[strings.ToLower(m[1])]).Format(isoDate)
	}
	if m := thisWeekdayRe.FindStringSubmatch(text); m != nil {
		return nextWeekday(today, weekdays[strings.ToLower(m[1])]).Format(isoDate)
	}
	if m := bareWeekdayRe.FindStringSubmatch(text); m != nil {
		return nextWeekday(today, weekdays[strings.ToLower(m[1])]).Format(isoDate)
	}

	if m := isoDateInRe.FindStringSubmatch(text); m != nil {
		if d, ok := calendarDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return d
		}
	}
	if m := slashDateRe.FindStringSubmatch(text); m != nil {
		if d, ok := calendarDate(atoi(m[3]), atoi(m[1]), atoi(m[2])); ok {
			return d
		}
	}
	if m := dashDateRe.FindStringSubmatch(text); m != nil {
		if d, ok := calendarDate(atoi(m[3]), atoi(m[1]), atoi(m[2])); ok {
			return d
		}
	}
	if m := monthDateRe.FindStringSubmatch(text); m != nil {
		month := months[strings.ToLower(m[1])]
		day := atoi(m[2])
		year := today.Year()
		if m[3] != "" {
			year = atoi(m[3])
		}
		d, ok := calendarDate(year, int(month), day)
		if !ok {
			return ""
		}
		// Year omitted and the date already passed: roll to next year.
		if m[3] == "" && d < today.Format(isoDate) {
			if d2, ok := calendarDate(year+1, int(month), day); ok {
				return d2
			}
			return ""
		}
		return d
	}

	return ""
}

// nextWeekday returns the next occurrence of target strictly after today.
func nextWeekday(today time.Time, target time.Weekday) time.Time {
	offset := (int(target) - int(today.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return today.AddDate(0, 0, offset)
}

// calendarDate formats (year, month, day) as ISO, rejecting values that do
// not name a real calendar date (Feb 30, month 13, and so on).
func calendarDate(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
