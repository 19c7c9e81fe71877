// Package testfixtures provides deterministic clocks, identifiers and court
// snapshots for tests across the module.
package testfixtures

import (
	"fmt"
	"time"

	"github.com/example/courtboard/internal/court"
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// SnapshotOption mutates a snapshot under construction.
type SnapshotOption func(*court.Snapshot)

// NewSnapshot builds an n-court snapshot and applies opts in order.
func NewSnapshot(n int, opts ...SnapshotOption) court.Snapshot {
	snap := court.NewSnapshot(n)
	for _, opt := range opts {
		opt(&snap)
	}
	return snap
}

// Players builds participants from display names.
func Players(names ...string) []court.Participant {
	out := make([]court.Participant, 0, len(names))
	for _, name := range names {
		out = append(out, court.Participant{Name: name})
	}
	return out
}

// WithSession places a session on court id spanning [start, end).
func WithSession(id int, start, end time.Time, names ...string) SnapshotOption {
	return func(s *court.Snapshot) {
		s.Courts[id-1].Current = &court.Session{
			Participants:    Players(names...),
			Start:           start,
			End:             end,
			DurationMinutes: int(end.Sub(start) / time.Minute),
		}
	}
}

// WithSessionEndingAt places a session on court id that ends at end and
// started an hour earlier.
func WithSessionEndingAt(id int, end time.Time, names ...string) SnapshotOption {
	return WithSession(id, end.Add(-time.Hour), end, names...)
}

// WithAllOccupiedUntil fills every court with a session ending at end.
func WithAllOccupiedUntil(end time.Time) SnapshotOption {
	return func(s *court.Snapshot) {
		for i := range s.Courts {
			WithSessionEndingAt(i+1, end, fmt.Sprintf("Player %02d", i+1))(s)
		}
	}
}

// WithWaitlist appends a queued group.
func WithWaitlist(id string, names ...string) SnapshotOption {
	return func(s *court.Snapshot) {
		s.Waitlist = append(s.Waitlist, court.WaitlistEntry{
			ID:           id,
			Participants: Players(names...),
			EnqueuedAt:   referenceTime,
		})
	}
}

// WithWet marks courts wet.
func WithWet(ids ...int) SnapshotOption {
	return func(s *court.Snapshot) {
		s.WetCourts = append(s.WetCourts, ids...)
	}
}

// WithTick sets the snapshot tick.
func WithTick(tick int64) SnapshotOption {
	return func(s *court.Snapshot) {
		s.Tick = tick
	}
}

// Block returns an administrative block on court id spanning [start, end).
func Block(id int, start, end time.Time, reason string) court.Block {
	return court.Block{
		ID:        fmt.Sprintf("block-%d-%d", id, start.Unix()),
		Court:     id,
		Start:     start,
		End:       end,
		Reason:    reason,
		CreatedAt: referenceTime,
	}
}

// Minutes converts n to a duration.
func Minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
