package application

import (
	"fmt"
	"strings"
)

// PriorityPolicy decides how many groups at the front of the waitlist may be
// served ahead of the rest.
type PriorityPolicy interface {
	Name() string
	// EligiblePrefix returns the number of front positions allowed to take a
	// court when offerable courts are currently offerable.
	EligiblePrefix(offerable int) int
}

// FrontOnly serves strictly in queue order.
type FrontOnly struct{}

func (FrontOnly) Name() string { return "front-only" }

func (FrontOnly) EligiblePrefix(int) int { return 1 }

// FrontPair lets the second group go first when at least two courts can be
// offered, so the front group's choice never strands the next one.
type FrontPair struct{}

func (FrontPair) Name() string { return "front-pair" }

func (FrontPair) EligiblePrefix(offerable int) int {
	if offerable >= 2 {
		return 2
	}
	return 1
}

// ParsePriorityPolicy maps a configuration value to a policy. Empty selects
// FrontPair.
func ParsePriorityPolicy(value string) (PriorityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "front-pair":
		return FrontPair{}, nil
	case "front-only":
		return FrontOnly{}, nil
	default:
		return nil, fmt.Errorf("application: unknown priority policy %q", value)
	}
}
