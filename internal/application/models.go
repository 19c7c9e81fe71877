package application

import (
	"context"
	"time"

	"github.com/example/courtboard/internal/availability"
	"github.com/example/courtboard/internal/court"
)

// SnapshotStore is the state access the services need. *guard.Guard
// satisfies it.
type SnapshotStore interface {
	Load(ctx context.Context) (court.Snapshot, error)
	Blocks(ctx context.Context) ([]court.Block, error)
	Persist(ctx context.Context, incoming court.Snapshot) (court.Snapshot, error)
	SaveBlocks(ctx context.Context, blocks []court.Block) error
}

// AllocateParams describes a "play now" request.
type AllocateParams struct {
	Court           int
	Participants    []court.Participant
	Guests          int
	DurationMinutes int
	// WaitlistEntryID names the queued group being promoted. When
	// Participants is empty the entry's group is used.
	WaitlistEntryID  string
	OverridePriority bool
}

// AllocationResult reports a committed allocation.
type AllocationResult struct {
	Court    int
	Session  court.Session
	Bumped   *court.ArchivedSession
	Snapshot court.Snapshot
}

// ReleaseParams describes a clear request.
type ReleaseParams struct {
	Court  int
	Reason string
}

// ReleaseResult reports a cleared court.
type ReleaseResult struct {
	Court    int
	Archived court.ArchivedSession
	Snapshot court.Snapshot
}

// EnqueueParams describes a waitlist join.
type EnqueueParams struct {
	Participants []court.Participant
	Guests       int
	// Force queues the group even when a court could be offered now.
	Force bool
}

// EnqueueResult reports the new entry and its 1-based position.
type EnqueueResult struct {
	Entry    court.WaitlistEntry
	Position int
	Snapshot court.Snapshot
}

// AutoClearResult lists the courts released by maintenance.
type AutoClearResult struct {
	Courts   []int
	Snapshot court.Snapshot
}

// WaitlistView is a queued group with its estimated wait.
type WaitlistView struct {
	Position         int                 `json:"position"`
	Entry            court.WaitlistEntry `json:"entry"`
	EstimatedMinutes int                 `json:"estimatedMinutes"`
}

// Board is everything a display needs at one instant.
type Board struct {
	Now       time.Time         `json:"now"`
	Snapshot  court.Snapshot    `json:"snapshot"`
	Info      availability.Info `json:"availability"`
	Offerable []int             `json:"offerable"`
	MustWait  bool              `json:"mustWait"`
	NextFree  []time.Time       `json:"nextFree"`
	Waitlist  []WaitlistView    `json:"waitlist"`
	Blocks    []court.Block     `json:"blocks"`
}

// ApplyTemplateParams selects a catalog template by id or supplies one inline.
type ApplyTemplateParams struct {
	TemplateID string
	Template   *court.BlockTemplate
	At         time.Time
}

// ExpandRecurrenceParams selects a catalog rule by id or supplies one inline.
type ExpandRecurrenceParams struct {
	RuleID string
	Rule   *court.RecurrenceRule
	Start  time.Time
	End    time.Time
}
