package availability

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/courtboard/internal/court"
)

// Mode selects the offering rule.
type Mode string

const (
	// ModeLookahead is used to decide whether a group should queue.
	ModeLookahead Mode = "lookahead"
	// ModeStrict is used to decide what may be assigned right now.
	ModeStrict Mode = "strict"
)

// ParseMode maps a query value to a Mode. An empty value means strict.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeLookahead:
		return ModeLookahead, nil
	default:
		return "", fmt.Errorf("availability: unknown mode %q", value)
	}
}

// OfferableFrom derives the offerable set from a classification: free courts
// when any exist, otherwise overtime courts. Wet and blocked courts are never
// offered because they are classified before overtime.
func OfferableFrom(info Info) []int {
	if len(info.Free) > 0 {
		return slices.Clone(info.Free)
	}
	return slices.Clone(info.Overtime)
}

// Offerable returns the courts that may be offered under mode. Both modes
// currently share the same rule; strict membership is necessary but not
// sufficient for assignment.
func Offerable(snap court.Snapshot, now time.Time, blocks []court.Block, wet []int, mode Mode) []int {
	return OfferableFrom(Classify(snap, now, blocks, wet))
}

// MustWait reports whether a newcomer has nothing to be offered.
func MustWait(info Info) bool {
	return len(OfferableFrom(info)) == 0
}
