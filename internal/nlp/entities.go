package nlp

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mirevald/daybook/pkg/types"
)

// fallbackTitle is used when subtraction leaves nothing and no event-type
// keyword appears in the utterance.
const fallbackTitle = "New Event"

// A name is one or more consecutive TitleCase words; names are separated by
// commas or "and". Case-sensitive on purpose.
const nameToken = `[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*`

var (
	withRe  = regexp.MustCompile(`\b[Ww]ith\s+(` + nameToken + `(?:(?:,\s*(?:and\s+)?|\s+and\s+)` + nameToken + `)*)`)
	nameSep = regexp.MustCompile(`,\s*(?:and\s+)?|\s+and\s+`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// extractParticipants collects TitleCase name sequences after "with" plus any
// email addresses anywhere in the text. Order preserved, first occurrence
// wins on duplicates.
func extractParticipants(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, p)
	}

	for _, m := range withRe.FindAllStringSubmatch(text, -1) {
		for _, name := range nameSep.Split(m[1], -1) {
			add(name)
		}
	}
	for _, email := range emailRe.FindAllString(text, -1) {
		add(email)
	}
	return out
}

var locationRe = regexp.MustCompile(`\b(?:at|in|on|from|to|via)\s+(` + nameToken + `)`)

// extractLocation captures a TitleCase phrase after a locative preposition.
// Phrases that name a date or time ("on Monday", "at Noon") are rejected.
func extractLocation(text string) string {
	loc, _ := locationSpan(text)
	return loc
}

// locationSpan returns the location plus the full matched span (preposition
// included) so the title pass can subtract it.
func locationSpan(text string) (loc, span string) {
	for _, m := range locationRe.FindAllStringSubmatch(text, -1) {
		candidate := m[1]
		if dateOrTimeWord(candidate) {
			continue
		}
		return candidate, m[0]
	}
	return "", ""
}

var dateTimeWordRe = regexp.MustCompile(`(?i)^(?:` + weekdayNames +
	`|january|february|march|april|may|june|july|august|september|october|november|december` +
	`|today|tomorrow|yesterday|noon|midnight|morning|afternoon|evening|night|breakfast|lunch|dinner)\b`)

func dateOrTimeWord(phrase string) bool {
	return dateTimeWordRe.MatchString(phrase) || timeTokenRe.MatchString(phrase)
}

var (
	highPriorityRe   = regexp.MustCompile(`(?i)\b(?:urgent|important|critical|asap|high\s+priority)\b`)
	mediumPriorityRe = regexp.MustCompile(`(?i)\b(?:medium\s+priority|normal\s+priority)\b`)
	lowPriorityRe    = regexp.MustCompile(`(?i)\b(?:low\s+priority|no\s+rush|whenever|sometime)\b`)
)

func extractPriority(text string) string {
	switch {
	case highPriorityRe.MatchString(text):
		return "high"
	case mediumPriorityRe.MatchString(text):
		return "medium"
	case lowPriorityRe.MatchString(text):
		return "low"
	}
	return ""
}

var (
	everyNRe    = regexp.MustCompile(`(?i)\bevery\s+(\d+)\s+(day|week|month|year)s?\b`)
	dailyRe     = regexp.MustCompile(`(?i)\b(?:daily|every\s+day)\b`)
	weeklyRe    = regexp.MustCompile(`(?i)\b(?:weekly|every\s+week)\b`)
	monthlyRe   = regexp.MustCompile(`(?i)\b(?:monthly|every\s+month)\b`)
	yearlyRe    = regexp.MustCompile(`(?i)\b(?:yearly|annually|every\s+year)\b`)
	recurInitRe = regexp.MustCompile(`(?i)\b(?:daily|weekly|monthly|yearly|annually|every\s+(?:day|week|month|year|\d+\s+(?:day|week|month|year)s?))\b`)
)

// extractRecurrence resolves repeat phrases. "every N <unit>" takes priority
// over the single-word forms so "every 2 weeks" is not read as weekly.
func extractRecurrence(text string) *types.Recurrence {
	if m := everyNRe.FindStringSubmatch(text); m != nil {
		return &types.Recurrence{Type: strings.ToLower(m[2]) + "ly", Interval: atoi(m[1])}
	}
	switch {
	case dailyRe.MatchString(text):
		return &types.Recurrence{Type: "daily", Interval: 1}
	case weeklyRe.MatchString(text):
		return &types.Recurrence{Type: "weekly", Interval: 1}
	case monthlyRe.MatchString(text):
		return &types.Recurrence{Type: "monthly", Interval: 1}
	case yearlyRe.MatchString(text):
		return &types.Recurrence{Type: "yearly", Interval: 1}
	}
	return nil
}

// titleStripRes are the phrase patterns subtracted from the utterance before
// the remainder becomes the title. Optional leading prepositions are folded
// into each pattern so no dangling "at"/"on" survives the strip.
var titleStripRes = []*regexp.Regexp{
	fromToRangeRe,
	dashRangeRe,
	regexp.MustCompile(`(?i)\b(?:at|around|by)?\s*\d{1,2}:\d{2}\s*(?:am|pm)?\b`),
	regexp.MustCompile(`(?i)\b(?:at|around|by)?\s*\d{1,2}\s*(?:am|pm)\b`),
	regexp.MustCompile(`(?i)\b(?:at|in\s+the|around|this)?\s*(?:noon|midnight|morning|afternoon|evening|night|breakfast|lunch|dinner)\b`),
	relativeTimeRe,
	regexp.MustCompile(`(?i)\b(?:on\s+)?(?:day\s+after\s+tomorrow|tomorrow|today|yesterday|next\s+week|next\s+month)\b`),
	regexp.MustCompile(`(?i)\b(?:on\s+)?(?:next\s+|this\s+)?(?:` + weekdayNames + `)\b`),
	regexp.MustCompile(`(?i)\b(?:on\s+)?(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s*\d{4})?\b`),
	regexp.MustCompile(`(?i)\b(?:on\s+)?\d{1,2}/\d{1,2}/\d{4}\b`),
	regexp.MustCompile(`(?i)\b(?:on\s+)?\d{4}-\d{1,2}-\d{1,2}\b`),
	regexp.MustCompile(`(?i)\b(?:on\s+)?\d{1,2}-\d{1,2}-\d{4}\b`),
	regexp.MustCompile(`(?i)\b(?:for\s+)?(?:all\s+day|full\s+day|half\s+(?:an\s+)?hour|quarter\s+(?:of\s+an\s+)?hour)\b`),
	regexp.MustCompile(`(?i)\b(?:for\s+)?\d+\s*hours?(?:\s+(?:and\s+)?\d+\s*min(?:ute)?s?)?\b`),
	regexp.MustCompile(`(?i)\b(?:for\s+)?\d+\s*min(?:ute)?s?\b`),
	recurInitRe,
	highPriorityRe,
	mediumPriorityRe,
	lowPriorityRe,
}

var (
	intentWordRe  = buildIntentWordRe()
	articleRe     = regexp.MustCompile(`(?i)^(?:a|an|the)\s+`)
	extraSpaceRe  = regexp.MustCompile(`\s+`)
	edgePunctRe   = regexp.MustCompile(`^[\s.,!?;:'"]+|[\s.,!?;:'"]+$`)
	contractionRe = regexp.MustCompile(`(?i)'(?:s|ll|re|ve|d|m)\b`)
	edgePrepRe    = regexp.MustCompile(`(?i)^(?:at|on|in|for|to|from|with)\s+|\s+(?:at|on|in|for|to|from|with)$`)
	questionTails = regexp.MustCompile(`(?i)\b(?:my\s+)?(?:calendar|schedule|agenda)\b`)
)

func buildIntentWordRe() *regexp.Regexp {
	var words []string
	for _, kws := range intentKeywords {
		words = append(words, kws...)
	}
	words = append(words, "what", "when", "where", "who", "how", "which",
		"please", "me", "my", "i", "is", "are", "do", "have")
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
}

// extractTitle subtracts every recognized phrase from the utterance and
// treats what remains as the title. Falls back to the event-type keyword,
// then to the generic placeholder.
func extractTitle(text string) string {
	s := text

	if _, span := locationSpan(s); span != "" {
		s = strings.Replace(s, span, " ", 1)
	}
	if m := withRe.FindString(s); m != "" {
		s = strings.Replace(s, m, " ", 1)
	}
	for _, email := range emailRe.FindAllString(s, -1) {
		s = strings.Replace(s, email, " ", 1)
	}
	for _, re := range titleStripRes {
		s = re.ReplaceAllString(s, " ")
	}
	s = contractionRe.ReplaceAllString(s, " ")
	s = intentWordRe.ReplaceAllString(s, " ")
	s = questionTails.ReplaceAllString(s, " ")

	s = extraSpaceRe.ReplaceAllString(s, " ")
	s = edgePunctRe.ReplaceAllString(s, "")
	for {
		next := edgePunctRe.ReplaceAllString(edgePrepRe.ReplaceAllString(s, ""), "")
		if next == s {
			break
		}
		s = next
	}
	s = articleRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if s == "" {
		if _, kw := types.EventTypeMatch(text); kw != "" {
			return capitalize(kw)
		}
		return fallbackTitle
	}
	return capitalize(s)
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
