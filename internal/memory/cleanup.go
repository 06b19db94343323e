package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mirevald/daybook/pkg/store"
)

const (
	// cleanupRetention is how long low-value contextual memories are kept.
	cleanupRetention = 90 * 24 * time.Hour

	// cleanupMinRelevance protects contextual memories at or above this score
	// from the sweep.
	cleanupMinRelevance = 2.0
)

// CleanupOnce deletes contextual memories older than 90 days with relevance
// below 2.0, across all users, and returns the number removed.
func (s *Service) CleanupOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-cleanupRetention)
	n, err := s.memories.DeleteOldMemories(ctx, cutoff, store.CategoryContextual, cleanupMinRelevance)
	if err != nil {
		return 0, fmt.Errorf("memory: cleanup sweep: %w", err)
	}
	if n > 0 {
		slog.Info("memory: cleanup sweep removed memories", "count", n)
	}
	return n, nil
}

// Schedule registers the hourly cleanup sweep and the cache flush on the
// given cron. The caller owns the cron's lifecycle (Start/Stop).
func (s *Service) Schedule(c *cron.Cron, cleanupSpec, flushSpec string) error {
	if _, err := c.AddFunc(cleanupSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.CleanupOnce(ctx); err != nil {
			slog.Error("memory: cleanup sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("memory: register cleanup schedule %q: %w", cleanupSpec, err)
	}

	if _, err := c.AddFunc(flushSpec, s.FlushCaches); err != nil {
		return fmt.Errorf("memory: register flush schedule %q: %w", flushSpec, err)
	}
	return nil
}
