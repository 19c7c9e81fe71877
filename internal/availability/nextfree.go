package availability

import (
	"time"

	"github.com/example/courtboard/internal/court"
)

// NextFreeInstant returns the earliest instant at or after now when the court
// is neither occupied by a future-ending session nor covered by a block.
// Blocks are chained: if a block ends where another begins, both are skipped.
func NextFreeInstant(snap court.Snapshot, id int, now time.Time, blocks []court.Block) time.Time {
	t := now
	if c, ok := snap.Court(id); ok && c.Current != nil && c.Current.EndsAfter(t) {
		t = c.Current.End
	}

	for guard := 0; guard <= len(blocks); guard++ {
		advanced := false
		for _, b := range blocks {
			if b.Court == id && b.Active(t) {
				t = b.End
				advanced = true
			}
		}
		if !advanced {
			break
		}
	}
	return t
}

// NextFreeInstants returns NextFreeInstant for every court in 1..N, indexed
// by court id minus one.
func NextFreeInstants(snap court.Snapshot, now time.Time, blocks []court.Block) []time.Time {
	out := make([]time.Time, snap.CourtCount())
	for i := range out {
		out[i] = NextFreeInstant(snap, i+1, now, blocks)
	}
	return out
}
