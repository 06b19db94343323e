package nlp

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// namedTimes maps colloquial time words to a wall-clock default.
var namedTimes = map[string]string{
	"noon":      "12:00",
	"midnight":  "00:00",
	"morning":   "09:00",
	"afternoon": "14:00",
	"evening":   "18:00",
	"night":     "20:00",
	"breakfast": "08:00",
	"lunch":     "12:00",
	"dinner":    "18:00",
}

var (
	namedTimeRe = regexp.MustCompile(`(?i)\b(noon|midnight|morning|afternoon|evening|night|breakfast|lunch|dinner)\b`)

	// simpleTimeRe matches "3pm" / "11 am"; the hour is validated after the
	// match since \b cannot reject the minute half of "1:30pm" here.
	simpleTimeRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(am|pm)\b`)

	absTimeRe = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`)

	// Time ranges. The dash form requires a colon or meridiem on at least one
	// side so that date fragments like "03-15" are not read as a range.
	fromToRangeRe = regexp.MustCompile(`(?i)\bfrom\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)\s+(?:to|until)\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)\b`)
	dashRangeRe   = regexp.MustCompile(`(?i)\b(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)\s*-\s*(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)\b`)

	relativeTimeRe = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(hours?|minutes?)\b`)

	timeTokenRe = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
)

// extractTime resolves the time (and optional end time) mentioned in the
// text. Later, more specific extractors overwrite earlier matches, so
// "lunch at 1pm" resolves to 13:00 rather than the lunch default of 12:00.
func extractTime(text string, now time.Time) (start, end string) {
	if m := namedTimeRe.FindStringSubmatch(text); m != nil {
		start = namedTimes[strings.ToLower(m[1])]
	}

	for _, m := range simpleTimeRe.FindAllStringSubmatch(text, -1) {
		if t, ok := clockTime(atoi(m[1]), 0, m[2]); ok {
			start = t
			break
		}
	}

	for _, m := range absTimeRe.FindAllStringSubmatch(text, -1) {
		if t, ok := clockTime(atoi(m[1]), atoi(m[2]), m[3]); ok {
			start = t
			break
		}
	}

	if s, e, ok := extractRange(text); ok {
		start, end = s, e
	}

	if m := relativeTimeRe.FindStringSubmatch(text); m != nil {
		d := time.Duration(atoi(m[1]))
		if strings.HasPrefix(strings.ToLower(m[2]), "hour") {
			d *= time.Hour
		} else {
			d *= time.Minute
		}
		start = now.Add(d).Format("15:04")
	}

	return start, end
}

// extractRange matches "from 2pm to 4pm" or "2pm-4:30pm". A side missing its
// meridiem inherits the other side's, so "from 2 to 4pm" reads as 14:00-16:00.
func extractRange(text string) (start, end string, ok bool) {
	m := fromToRangeRe.FindStringSubmatch(text)
	if m == nil {
		m = dashRangeRe.FindStringSubmatch(text)
		if m == nil {
			return "", "", false
		}
		if !strings.ContainsAny(m[0], ":") && !strings.Contains(strings.ToLower(m[0]), "m") {
			return "", "", false
		}
	}

	lh, lm, lmer, lok := splitTimeToken(m[1])
	rh, rm, rmer, rok := splitTimeToken(m[2])
	if !lok || !rok {
		return "", "", false
	}
	if lmer == "" {
		lmer = rmer
	}
	if rmer == "" {
		rmer = lmer
	}

	s, sok := clockTime(lh, lm, lmer)
	e, eok := clockTime(rh, rm, rmer)
	if !sok || !eok {
		return "", "", false
	}
	return s, e, true
}

func splitTimeToken(tok string) (hour, minute int, meridiem string, ok bool) {
	m := timeTokenRe.FindStringSubmatch(strings.TrimSpace(tok))
	if m == nil {
		return 0, 0, "", false
	}
	hour = atoi(m[1])
	if m[2] != "" {
		minute = atoi(m[2])
	}
	return hour, minute, strings.ToLower(m[3]), true
}

// clockTime converts a matched (hour, minute, meridiem) triple to 24h HH:MM.
// With a meridiem the hour must be 1-12; without, 0-23. PM adds 12 below
// noon; 12am wraps to 00.
func clockTime(hour, minute int, meridiem string) (string, bool) {
	if minute < 0 || minute > 59 {
		return "", false
	}
	switch strings.ToLower(meridiem) {
	case "am":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour < 12 {
			hour += 12
		}
	default:
		if hour < 0 || hour > 23 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

var (
	allDayRe      = regexp.MustCompile(`(?i)\b(?:all\s+day|full\s+day)\b`)
	halfHourRe    = regexp.MustCompile(`(?i)\bhalf\s+(?:an\s+)?hour\b`)
	quarterHourRe = regexp.MustCompile(`(?i)\bquarter\s+(?:of\s+an\s+)?hour\b`)
	hoursRe       = regexp.MustCompile(`(?i)\b(\d+)\s*hours?(?:\s+(?:and\s+)?(\d+)\s*min(?:ute)?s?)?\b`)
	minutesRe     = regexp.MustCompile(`(?i)\b(\d+)\s*min(?:ute)?s?\b`)
)

// extractDuration resolves a stated event length in minutes, 0 when absent.
// Numeric matches preceded by "in" belong to relative times ("in 2 hours")
// and are skipped.
func extractDuration(text string) int {
	if allDayRe.MatchString(text) {
		return 480
	}
	if halfHourRe.MatchString(text) {
		return 30
	}
	if quarterHourRe.MatchString(text) {
		return 15
	}

	for _, idx := range hoursRe.FindAllStringSubmatchIndex(text, -1) {
		if relativePrefix(text, idx[0]) {
			continue
		}
		h := atoi(text[idx[2]:idx[3]])
		m := 0
		if idx[4] >= 0 {
			m = atoi(text[idx[4]:idx[5]])
		}
		return h*60 + m
	}

	for _, idx := range minutesRe.FindAllStringSubmatchIndex(text, -1) {
		if relativePrefix(text, idx[0]) {
			continue
		}
		return atoi(text[idx[2]:idx[3]])
	}

	return 0
}

// relativePrefix reports whether the text immediately before offset ends in
// the word "in", which marks a relative-time phrase rather than a duration.
func relativePrefix(text string, offset int) bool {
	before := strings.ToLower(strings.TrimRight(text[:offset], " "))
	return before == "in" || strings.HasSuffix(before, " in")
}
