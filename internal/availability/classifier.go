// Package availability classifies every court at an instant and derives the
// set of courts that may be offered to a requester.
//
// All functions are pure: they read the snapshot and block list they are
// given and never modify either.
package availability

import (
	"slices"
	"time"

	"github.com/example/courtboard/internal/court"
)

// Status is the single classification of one court at one instant.
type Status string

const (
	StatusFree     Status = "free"
	StatusOccupied Status = "occupied"
	StatusOvertime Status = "overtime"
	StatusBlocked  Status = "blocked"
	StatusWet      Status = "wet"
)

// CourtStatus describes one court.
type CourtStatus struct {
	Court       int       `json:"court"`
	Status      Status    `json:"status"`
	BlockReason string    `json:"blockReason,omitempty"`
	BlockEnd    time.Time `json:"blockEnd,omitzero"`
	SessionEnd  time.Time `json:"sessionEnd,omitzero"`
}

// IsFree reports whether the court is free.
func (c CourtStatus) IsFree() bool { return c.Status == StatusFree }

// IsOvertime reports whether the court is in overtime.
func (c CourtStatus) IsOvertime() bool { return c.Status == StatusOvertime }

// Info is the classification of the whole pool.
//
// Occupied lists every court that is not free, so Free and Occupied always
// partition 1..Total.
type Info struct {
	Courts   []CourtStatus `json:"courts"`
	Free     []int         `json:"free"`
	Occupied []int         `json:"occupied"`
	Overtime []int         `json:"overtime"`
	Blocked  []int         `json:"blocked"`
	Wet      []int         `json:"wet"`
	Total    int           `json:"total"`
}

// ActiveBlock returns the first active block on the court, preferring wet
// blocks so rain outranks other reservations.
func ActiveBlock(blocks []court.Block, id int, now time.Time) (court.Block, bool) {
	var found court.Block
	ok := false
	for _, b := range blocks {
		if b.Court != id || !b.Active(now) {
			continue
		}
		if b.Wet {
			return b, true
		}
		if !ok {
			found, ok = b, true
		}
	}
	return found, ok
}

// ClassifyCourt applies the precedence wet, blocked, overtime, occupied, free.
func ClassifyCourt(snap court.Snapshot, id int, now time.Time, blocks []court.Block, wet []int) CourtStatus {
	status := CourtStatus{Court: id, Status: StatusFree}
	c, _ := snap.Court(id)
	if c.Current != nil {
		status.SessionEnd = c.Current.End
	}

	block, blocked := ActiveBlock(blocks, id, now)
	switch {
	case slices.Contains(wet, id) || (blocked && block.Wet):
		status.Status = StatusWet
		if blocked && block.Wet {
			status.BlockReason, status.BlockEnd = block.Reason, block.End
		}
	case blocked:
		status.Status = StatusBlocked
		status.BlockReason, status.BlockEnd = block.Reason, block.End
	case c.Current != nil && c.Current.Overtime(now):
		status.Status = StatusOvertime
	case c.Current != nil:
		status.Status = StatusOccupied
	}
	return status
}

// Classify assigns every court in 1..N exactly one status. When wet is nil
// the snapshot's own wet markers are used.
func Classify(snap court.Snapshot, now time.Time, blocks []court.Block, wet []int) Info {
	if wet == nil {
		wet = snap.WetCourts
	}
	n := snap.CourtCount()
	info := Info{
		Courts:   make([]CourtStatus, 0, n),
		Free:     []int{},
		Occupied: []int{},
		Overtime: []int{},
		Blocked:  []int{},
		Wet:      []int{},
		Total:    n,
	}
	for id := 1; id <= n; id++ {
		status := ClassifyCourt(snap, id, now, blocks, wet)
		info.Courts = append(info.Courts, status)
		switch status.Status {
		case StatusFree:
			info.Free = append(info.Free, id)
			continue
		case StatusOvertime:
			info.Overtime = append(info.Overtime, id)
		case StatusBlocked:
			info.Blocked = append(info.Blocked, id)
		case StatusWet:
			info.Wet = append(info.Wet, id)
		}
		info.Occupied = append(info.Occupied, id)
	}
	return info
}
