package memory

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/mirevald/daybook/pkg/types"
)

// Recommendations are slot suggestions for a CREATE turn, sourced from the
// user's mined behavioral memories. Empty slices mean nothing was suggested.
type Recommendations struct {
	SuggestedTimes        []string `json:"suggestedTimes,omitempty"`
	SuggestedDurations    []int    `json:"suggestedDurations,omitempty"`
	SuggestedParticipants []string `json:"suggestedParticipants,omitempty"`
}

// GetContextualRecommendations fills suggestions for slots the current CREATE
// turn left empty. Non-CREATE intents get no recommendations. Lookup failures
// degrade to empty suggestions; a recommendation is never required.
func (s *Service) GetContextualRecommendations(ctx context.Context, userID string, intent types.Intent, entities types.Entities) Recommendations {
	var rec Recommendations
	if intent != types.IntentCreate {
		return rec
	}

	if entities.Time == "" {
		if m, err := s.GetMemory(ctx, userID, "preferred_meeting_times"); err == nil && m != nil {
			_ = json.Unmarshal([]byte(m.Value), &rec.SuggestedTimes)
		}
	}
	if entities.Duration == 0 {
		if m, err := s.GetMemory(ctx, userID, "typical_meeting_duration"); err == nil && m != nil {
			if minutes, convErr := strconv.Atoi(m.Value); convErr == nil && minutes > 0 {
				rec.SuggestedDurations = []int{minutes}
			}
		}
	}
	if len(entities.Participants) == 0 {
		if m, err := s.GetMemory(ctx, userID, "frequent_meeting_participants"); err == nil && m != nil {
			var names []string
			if json.Unmarshal([]byte(m.Value), &names) == nil {
				if len(names) > 3 {
					names = names[:3]
				}
				rec.SuggestedParticipants = names
			}
		}
	}
	return rec
}
