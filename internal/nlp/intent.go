package nlp

import (
	"regexp"
	"strings"

	"github.com/mirevald/daybook/pkg/types"
)

// questionRe forces QUERY when the utterance opens with a question word,
// regardless of keyword scores ("what's on my calendar" must never CREATE).
var questionRe = regexp.MustCompile(`(?i)^(?:what|when|where|who|how|which)\b`)

// intentPriority breaks score ties. Earlier wins.
var intentPriority = []types.Intent{
	types.IntentCreate,
	types.IntentModify,
	types.IntentDelete,
	types.IntentQuery,
}

var intentKeywords = map[types.Intent][]string{
	types.IntentCreate: {
		"schedule", "add", "create", "book", "set", "plan", "arrange",
		"organize", "make", "new", "remind",
	},
	types.IntentModify: {
		"change", "move", "reschedule", "update", "modify", "edit",
		"shift", "postpone", "push",
	},
	types.IntentDelete: {
		"delete", "cancel", "remove", "clear", "drop",
	},
	types.IntentQuery: {
		"show", "list", "find", "check", "view", "see", "tell",
		"upcoming", "agenda", "display", "lookup",
	},
}

// classifyIntent scores each intent by case-insensitive whole-word keyword
// matches and returns the highest scorer, ties broken by intentPriority.
// Returns IntentUnknown when no keyword matched at all.
func classifyIntent(text string) types.Intent {
	if questionRe.MatchString(strings.TrimSpace(text)) {
		return types.IntentQuery
	}

	words := tokenize(text)

	best := types.IntentUnknown
	bestScore := 0
	for _, intent := range intentPriority {
		score := 0
		for _, kw := range intentKeywords[intent] {
			if words[kw] {
				score++
			}
		}
		if score > bestScore {
			best = intent
			bestScore = score
		}
	}
	return best
}

// tokenize lowercases and splits the text into a whole-word set, stripping
// surrounding punctuation so "schedule," still counts as a keyword hit.
func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if w != "" {
			words[w] = true
		}
	}
	return words
}
