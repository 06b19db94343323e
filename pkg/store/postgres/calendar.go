package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mirevald/daybook/pkg/store"
)

const eventColumns = `id, user_id, title, description, date, time, type,
	location, all_day, recurring, recurring_type, created_at, updated_at`

// CreateEvent implements [store.CalendarStore]. A missing ID is assigned a
// fresh UUID; CreatedAt and UpdatedAt are set by the database.
func (s *Store) CreateEvent(ctx context.Context, event store.CalendarEvent) (store.CalendarEvent, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Type == "" {
		event.Type = "other"
	}

	const q = `
		INSERT INTO calendar_events
		    (id, user_id, title, description, date, time, type, location,
		     all_day, recurring, recurring_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := s.pool.QueryRow(ctx, q,
		event.ID,
		event.UserID,
		event.Title,
		event.Description,
		event.Date,
		event.Time,
		event.Type,
		event.Location,
		event.AllDay,
		event.Recurring,
		event.RecurringType,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return store.CalendarEvent{}, fmt.Errorf("calendar store: create event: %w", err)
	}
	return event, nil
}

// GetEventsByDateRange implements [store.CalendarStore]. ISO dates compare
// lexicographically, so the TEXT range predicate matches the calendar range.
func (s *Store) GetEventsByDateRange(ctx context.Context, userID, startDate, endDate string) ([]store.CalendarEvent, error) {
	q := `
		SELECT ` + eventColumns + `
		FROM   calendar_events
		WHERE  user_id = $1
		  AND  date >= $2
		  AND  date <= $3
		ORDER  BY date, time`

	rows, err := s.pool.Query(ctx, q, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("calendar store: get events by date range: %w", err)
	}
	return collectEvents(rows)
}

// UpdateEvent implements [store.CalendarStore]. Only non-nil patch fields are
// written; UpdatedAt always advances.
func (s *Store) UpdateEvent(ctx context.Context, id string, patch store.EventPatch) (*store.CalendarEvent, error) {
	args := []any{id} // $1 = id
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sets := []string{"updated_at = now()"}
	if patch.Title != nil {
		sets = append(sets, "title = "+next(*patch.Title))
	}
	if patch.Description != nil {
		sets = append(sets, "description = "+next(*patch.Description))
	}
	if patch.Date != nil {
		sets = append(sets, "date = "+next(*patch.Date))
	}
	if patch.Time != nil {
		sets = append(sets, "time = "+next(*patch.Time))
	}
	if patch.Type != nil {
		sets = append(sets, "type = "+next(*patch.Type))
	}
	if patch.Location != nil {
		sets = append(sets, "location = "+next(*patch.Location))
	}
	if patch.AllDay != nil {
		sets = append(sets, "all_day = "+next(*patch.AllDay))
	}
	if patch.Recurring != nil {
		sets = append(sets, "recurring = "+next(*patch.Recurring))
	}
	if patch.RecurringType != nil {
		sets = append(sets, "recurring_type = "+next(*patch.RecurringType))
	}

	q := "UPDATE calendar_events SET " + strings.Join(sets, ", ") +
		" WHERE id = $1 RETURNING " + eventColumns

	ev, err := scanEvent(s.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("calendar store: update event: %w", err)
	}
	return &ev, nil
}

// DeleteEvent implements [store.CalendarStore].
func (s *Store) DeleteEvent(ctx context.Context, id string) (*store.CalendarEvent, error) {
	q := "DELETE FROM calendar_events WHERE id = $1 RETURNING " + eventColumns

	ev, err := scanEvent(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("calendar store: delete event: %w", err)
	}
	return &ev, nil
}

// GetUserEvents implements [store.CalendarStore].
func (s *Store) GetUserEvents(ctx context.Context, userID string, daysBack int) ([]store.CalendarEvent, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	cutoff := time.Now().AddDate(0, 0, -daysBack).Format("2006-01-02")

	q := `
		SELECT ` + eventColumns + `
		FROM   calendar_events
		WHERE  user_id = $1
		  AND  date >= $2
		ORDER  BY date, time`

	rows, err := s.pool.Query(ctx, q, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("calendar store: get user events: %w", err)
	}
	return collectEvents(rows)
}

// scanEvent reads one event row in eventColumns order.
func scanEvent(row pgx.Row) (store.CalendarEvent, error) {
	var e store.CalendarEvent
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Title,
		&e.Description,
		&e.Date,
		&e.Time,
		&e.Type,
		&e.Location,
		&e.AllDay,
		&e.Recurring,
		&e.RecurringType,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

// collectEvents scans pgx rows into a slice of CalendarEvent values.
func collectEvents(rows pgx.Rows) ([]store.CalendarEvent, error) {
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.CalendarEvent, error) {
		return scanEvent(row)
	})
	if err != nil {
		return nil, fmt.Errorf("calendar store: scan rows: %w", err)
	}
	if events == nil {
		events = []store.CalendarEvent{}
	}
	return events, nil
}
