package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mirevald/daybook/pkg/store"
	"github.com/mirevald/daybook/pkg/types"
)

// extractAndStoreContext derives durable facts from one parsed turn:
// participants become relationship contacts, the location a preference, and
// the time-of-day and event-type buckets behavioral counters.
func (s *Service) extractAndStoreContext(ctx context.Context, userID string, entities types.Entities) error {
	var errs []error

	for _, p := range entities.Participants {
		key := "contact:" + strings.ToLower(p)
		if err := s.StoreMemory(ctx, userID, key, p, store.CategoryRelationships, 0.6); err != nil {
			errs = append(errs, err)
		}
	}

	if entities.Location != "" {
		key := "location:" + strings.ToLower(entities.Location)
		if err := s.StoreMemory(ctx, userID, key, entities.Location, store.CategoryPreferences, 0.5); err != nil {
			errs = append(errs, err)
		}
	}

	if entities.Time != "" {
		if bucket := timeOfDayBucket(entities.Time); bucket != "" {
			if err := s.incrementCounter(ctx, userID, "time_preference:"+bucket); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if entities.Title != "" {
		if et := types.EventTypeFor(entities.Title); et != "" {
			if err := s.incrementCounter(ctx, userID, "event_type:"+et); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// timeOfDayBucket classifies an HH:MM time: morning before 12, afternoon
// before 17, evening otherwise. Returns "" for malformed input.
func timeOfDayBucket(hhmm string) string {
	h, _, ok := strings.Cut(hhmm, ":")
	if !ok {
		return ""
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return ""
	}
	switch {
	case hour < 12:
		return "morning"
	case hour < 17:
		return "afternoon"
	default:
		return "evening"
	}
}

// incrementCounter bumps a numeric behavioral counter memory by one.
func (s *Service) incrementCounter(ctx context.Context, userID, key string) error {
	count := 1
	if m, err := s.GetMemory(ctx, userID, key); err != nil {
		return err
	} else if m != nil {
		if prev, convErr := strconv.Atoi(m.Value); convErr == nil {
			count = prev + 1
		}
	}
	return s.StoreMemory(ctx, userID, key, strconv.Itoa(count), store.CategoryBehavioral, 0.5)
}

// summarize fetches the top memories of every category concurrently.
func (s *Service) summarize(ctx context.Context, userID string, perCategory int) (map[store.Category][]store.Memory, error) {
	var (
		mu      sync.Mutex
		summary = make(map[store.Category][]store.Memory, len(store.Categories()))
	)

	eg, egCtx := errgroup.WithContext(ctx)
	for _, cat := range store.Categories() {
		eg.Go(func() error {
			ms, err := s.memories.GetMemoriesByCategory(egCtx, userID, cat, perCategory)
			if err != nil {
				return fmt.Errorf("memory: summary for %q: %w", cat, err)
			}
			mu.Lock()
			summary[cat] = ms
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}
