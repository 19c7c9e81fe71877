// Package queue carries session lifecycle events to the history log, either
// through RabbitMQ or directly in-process.
package queue

import (
	"context"
	"time"

	"github.com/example/courtboard/internal/court"
)

// SessionArchivedQueue is the durable queue receiving archived sessions.
const SessionArchivedQueue = "court.session.archived"

// SessionArchivedEvent is emitted whenever a session moves into history,
// whether released, bumped or auto-cleared.
type SessionArchivedEvent struct {
	Court        int                 `json:"court"`
	Participants []court.Participant `json:"players"`
	Guests       int                 `json:"guests"`
	Start        time.Time           `json:"start"`
	End          time.Time           `json:"end"`
	OriginalEnd  time.Time           `json:"original_end,omitzero"`
	ClearedAt    time.Time           `json:"cleared_at"`
	Reason       string              `json:"reason"`
}

// NewSessionArchivedEvent builds the event for an archived session on court id.
func NewSessionArchivedEvent(id int, archived court.ArchivedSession) SessionArchivedEvent {
	return SessionArchivedEvent{
		Court:        id,
		Participants: append([]court.Participant(nil), archived.Participants...),
		Guests:       archived.Guests,
		Start:        archived.Start,
		End:          archived.End,
		OriginalEnd:  archived.OriginalEnd,
		ClearedAt:    archived.ClearedAt,
		Reason:       archived.Reason,
	}
}

// Publisher sends archived-session events somewhere durable.
type Publisher interface {
	PublishSessionArchived(ctx context.Context, event SessionArchivedEvent) error
}

// Recorder persists archived-session events.
type Recorder interface {
	RecordSessionArchived(ctx context.Context, event SessionArchivedEvent) error
}

// DirectPublisher hands events straight to a Recorder without a broker.
type DirectPublisher struct {
	Recorder Recorder
}

// PublishSessionArchived records the event. A nil recorder drops it.
func (p DirectPublisher) PublishSessionArchived(ctx context.Context, event SessionArchivedEvent) error {
	if p.Recorder == nil {
		return nil
	}
	return p.Recorder.RecordSessionArchived(ctx, event)
}

// NopPublisher discards every event.
type NopPublisher struct{}

// PublishSessionArchived does nothing.
func (NopPublisher) PublishSessionArchived(context.Context, SessionArchivedEvent) error { return nil }
