package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/mirevald/daybook/pkg/store"
)

// Export is the backup payload for one user's memories. Importing an Export
// into a cleared user restores every (key, value, category) triple.
type Export struct {
	UserID     string           `json:"userId"`
	ExportedAt time.Time        `json:"exportedAt"`
	Memories   []ExportedMemory `json:"memories"`
}

// ExportedMemory is one memory in an Export, without access bookkeeping.
type ExportedMemory struct {
	Key            string         `json:"key"`
	Value          string         `json:"value"`
	Category       store.Category `json:"category"`
	RelevanceScore float64        `json:"relevanceScore"`
}

// ExportUserMemories returns every memory of the user as a backup payload.
func (s *Service) ExportUserMemories(ctx context.Context, userID string) (Export, error) {
	ms, err := s.memories.GetAllUserMemories(ctx, userID)
	if err != nil {
		return Export{}, fmt.Errorf("memory: export: %w", err)
	}

	out := Export{
		UserID:     userID,
		ExportedAt: s.now(),
		Memories:   make([]ExportedMemory, 0, len(ms)),
	}
	for _, m := range ms {
		out.Memories = append(out.Memories, ExportedMemory{
			Key:            m.Key,
			Value:          m.Value,
			Category:       m.Category,
			RelevanceScore: m.RelevanceScore,
		})
	}
	return out, nil
}

// ImportUserMemories upserts every memory from a backup payload for userID.
// Invalid categories fall back to contextual; missing relevance defaults to
// 0.5. Returns the number of memories written.
func (s *Service) ImportUserMemories(ctx context.Context, userID string, payload Export) (int, error) {
	written := 0
	for _, m := range payload.Memories {
		if m.Key == "" {
			continue
		}
		category := m.Category
		if !category.IsValid() {
			category = store.CategoryContextual
		}
		relevance := m.RelevanceScore
		if relevance <= 0 {
			relevance = 0.5
		}
		if err := s.StoreMemory(ctx, userID, m.Key, m.Value, category, relevance); err != nil {
			return written, fmt.Errorf("memory: import %q: %w", m.Key, err)
		}
		written++
	}
	return written, nil
}
