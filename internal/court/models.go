// Package court defines the canonical snapshot of the court pool together with
// the JSON boundary that normalizes historical storage shapes.
package court

import (
	"slices"
	"time"
)

// Participant identifies a person occupying a court or waiting in the queue.
type Participant struct {
	Name string
	ID   string
}

// Session is a contiguous occupation of one court by one group.
type Session struct {
	Participants    []Participant
	Guests          int
	Start           time.Time
	End             time.Time
	DurationMinutes int
}

// Overtime reports whether the session reached its scheduled end. Sessions
// without a recorded end never become overtime.
func (s Session) Overtime(now time.Time) bool {
	return !s.End.IsZero() && !now.Before(s.End)
}

// EndsAfter reports whether the session still has play time left at now.
func (s Session) EndsAfter(now time.Time) bool {
	return !s.End.IsZero() && s.End.After(now)
}

// ArchivedSession is a session moved into court history.
type ArchivedSession struct {
	Session
	ClearedAt   time.Time
	Reason      string
	OriginalEnd time.Time
}

// Court holds the current session (if any) and append-only history.
type Court struct {
	Current *Session
	History []ArchivedSession
}

// Occupied reports whether the court has a current session.
func (c Court) Occupied() bool {
	return c.Current != nil
}

// Block is an administrative reservation making a court unavailable.
type Block struct {
	ID           string    `json:"id"`
	Court        int       `json:"courtNumber"`
	Start        time.Time `json:"startTime"`
	End          time.Time `json:"endTime"`
	Reason       string    `json:"reason"`
	Wet          bool      `json:"isWetCourt,omitempty"`
	TemplateID   string    `json:"templateId,omitempty"`
	TemplateName string    `json:"templateName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Active reports whether the block covers now (start inclusive, end exclusive).
func (b Block) Active(now time.Time) bool {
	return !now.Before(b.Start) && now.Before(b.End)
}

// BlockTemplate describes a reusable set of blocks.
type BlockTemplate struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Reason          string `json:"reason" yaml:"reason"`
	DurationMinutes int    `json:"duration" yaml:"duration"`
	Courts          []int  `json:"courts" yaml:"courts"`
	Wet             bool   `json:"isWetCourt,omitempty" yaml:"wet"`
}

// Pattern selects the recurrence step.
type Pattern string

const (
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
)

// RecurrenceRule repeats a template at a fixed cadence.
type RecurrenceRule struct {
	ID        string         `json:"id" yaml:"id"`
	Pattern   Pattern        `json:"pattern" yaml:"pattern"`
	Frequency int            `json:"frequency" yaml:"frequency"`
	Template  *BlockTemplate `json:"template" yaml:"template"`
}

// WaitlistEntry is one queued group.
type WaitlistEntry struct {
	ID           string
	Participants []Participant
	Guests       int
	EnqueuedAt   time.Time
}

// Snapshot is the full persisted state of the court pool.
type Snapshot struct {
	Courts    []Court
	Waitlist  []WaitlistEntry
	WetCourts []int
	Tick      int64
}

// NewSnapshot returns an empty snapshot with n courts.
func NewSnapshot(n int) Snapshot {
	if n < 0 {
		n = 0
	}
	return Snapshot{Courts: make([]Court, n)}
}

// CourtCount returns N.
func (s Snapshot) CourtCount() int {
	return len(s.Courts)
}

// ValidCourt reports whether id is within 1..N.
func (s Snapshot) ValidCourt(id int) bool {
	return id >= 1 && id <= len(s.Courts)
}

// Court returns the court with the 1-based id. ok is false when out of range.
func (s Snapshot) Court(id int) (Court, bool) {
	if !s.ValidCourt(id) {
		return Court{}, false
	}
	return s.Courts[id-1], true
}

// ActiveSessions counts courts with a current session.
func (s Snapshot) ActiveSessions() int {
	count := 0
	for _, c := range s.Courts {
		if c.Current != nil {
			count++
		}
	}
	return count
}

// FutureSessions counts current sessions that end after now.
func (s Snapshot) FutureSessions(now time.Time) int {
	count := 0
	for _, c := range s.Courts {
		if c.Current != nil && c.Current.EndsAfter(now) {
			count++
		}
	}
	return count
}

// IsWet reports whether the court id carries a wet marker.
func (s Snapshot) IsWet(id int) bool {
	return slices.Contains(s.WetCourts, id)
}

// WaitlistIndex returns the 0-based position of the entry with id, or -1.
func (s Snapshot) WaitlistIndex(id string) int {
	for i, entry := range s.Waitlist {
		if entry.ID == id {
			return i
		}
	}
	return -1
}

// Normalize resizes the court list to n and tidies wet markers.
func (s Snapshot) Normalize(n int) Snapshot {
	out := s.Clone()
	switch {
	case len(out.Courts) > n:
		out.Courts = out.Courts[:n]
	case len(out.Courts) < n:
		out.Courts = append(out.Courts, make([]Court, n-len(out.Courts))...)
	}

	wet := make([]int, 0, len(out.WetCourts))
	for _, id := range out.WetCourts {
		if id >= 1 && id <= n && !slices.Contains(wet, id) {
			wet = append(wet, id)
		}
	}
	slices.Sort(wet)
	out.WetCourts = wet
	return out
}
