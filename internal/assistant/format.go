package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/mirevald/daybook/pkg/store"
)

// longDate renders an ISO date as "Tuesday, March 12". Unparseable input is
// returned unchanged so a malformed date never breaks a reply.
func longDate(isoDate string) string {
	t, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return isoDate
	}
	return t.Format("Monday, January 2")
}

// clock12 renders a 24-hour HH:MM time as "1:00 PM".
func clock12(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}

// scheduleList renders one day's events as a bulleted reply, preserving the
// store's (date, time) order.
func scheduleList(day string, events []store.CalendarEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's your schedule for %s:\n", longDate(day))
	for _, e := range events {
		b.WriteString("• ")
		if e.AllDay {
			b.WriteString("All day")
		} else {
			b.WriteString(clock12(e.Time))
		}
		b.WriteString(" — ")
		b.WriteString(e.Title)
		if e.Location != "" {
			fmt.Fprintf(&b, " (%s)", e.Location)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// candidateList asks the user to pick among fuzzy-matched events.
func candidateList(verb string, candidates []store.CalendarEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Which event would you like to %s?\n", verb)
	for _, e := range candidates {
		fmt.Fprintf(&b, "• %q on %s", e.Title, longDate(e.Date))
		if !e.AllDay && e.Time != "" {
			fmt.Fprintf(&b, " at %s", clock12(e.Time))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
