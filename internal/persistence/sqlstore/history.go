package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/courtboard/internal/court"
	"github.com/example/courtboard/internal/queue"
)

// RecordSessionArchived appends an archived session to session_history.
func (s *Store) RecordSessionArchived(ctx context.Context, event queue.SessionArchivedEvent) error {
	players, err := json.Marshal(event.Participants)
	if err != nil {
		return fmt.Errorf("sqlstore: encode players: %w", err)
	}
	var originalEnd sql.NullInt64
	if !event.OriginalEnd.IsZero() {
		originalEnd = sql.NullInt64{Int64: event.OriginalEnd.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_history (court, players, guests, started_at, ended_at, original_end, cleared_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Court, string(players), event.Guests,
		event.Start.UnixMilli(), event.End.UnixMilli(), originalEnd,
		event.ClearedAt.UnixMilli(), event.Reason,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert history: %w", err)
	}
	return nil
}

// HistoryFilter narrows ListHistory. Zero values mean no restriction.
type HistoryFilter struct {
	Court int
	Limit int
}

// ListHistory returns archived sessions, most recently cleared first.
func (s *Store) ListHistory(ctx context.Context, filter HistoryFilter) ([]queue.SessionArchivedEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT court, players, guests, started_at, ended_at, original_end, cleared_at, reason FROM session_history`
	args := []any{}
	if filter.Court > 0 {
		query += ` WHERE court = ?`
		args = append(args, filter.Court)
	}
	query += ` ORDER BY cleared_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list history: %w", err)
	}
	defer rows.Close()

	events := make([]queue.SessionArchivedEvent, 0)
	for rows.Next() {
		var (
			event                     queue.SessionArchivedEvent
			players                   string
			started, ended, clearedAt int64
			originalEnd               sql.NullInt64
		)
		if err := rows.Scan(&event.Court, &players, &event.Guests, &started, &ended, &originalEnd, &clearedAt, &event.Reason); err != nil {
			return nil, fmt.Errorf("sqlstore: scan history: %w", err)
		}
		var participants []court.Participant
		if err := json.Unmarshal([]byte(players), &participants); err != nil {
			return nil, fmt.Errorf("sqlstore: decode players: %w", err)
		}
		event.Participants = participants
		event.Start = time.UnixMilli(started).UTC()
		event.End = time.UnixMilli(ended).UTC()
		event.ClearedAt = time.UnixMilli(clearedAt).UTC()
		if originalEnd.Valid {
			event.OriginalEnd = time.UnixMilli(originalEnd.Int64).UTC()
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
