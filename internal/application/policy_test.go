package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityPolicies(t *testing.T) {
	t.Parallel()

	for offerable, want := range map[int]int{0: 1, 1: 1, 2: 1, 5: 1} {
		assert.Equal(t, want, FrontOnly{}.EligiblePrefix(offerable))
	}
	for offerable, want := range map[int]int{0: 1, 1: 1, 2: 2, 5: 2} {
		assert.Equal(t, want, FrontPair{}.EligiblePrefix(offerable))
	}
}

func TestParsePriorityPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePriorityPolicy("")
	require.NoError(t, err)
	assert.Equal(t, "front-pair", p.Name())

	p, err = ParsePriorityPolicy(" Front-Only ")
	require.NoError(t, err)
	assert.Equal(t, "front-only", p.Name())

	_, err = ParsePriorityPolicy("lottery")
	assert.Error(t, err)
}

func TestDurationForGroupSize(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	assert.Equal(t, 60, s.DurationForGroupSize(2))
	assert.Equal(t, 60, s.DurationForGroupSize(3))
	assert.Equal(t, 90, s.DurationForGroupSize(4))
	assert.Equal(t, 45, Settings{SinglesMinutes: 45}.DurationForGroupSize(1))
}
