package application

import "github.com/example/courtboard/internal/waitlist"

// Settings are the tunables shared by the services.
type Settings struct {
	MaxGroupSize     int
	SinglesMinutes   int
	DoublesMinutes   int
	MaxPlayMinutes   int
	AvgGameMinutes   int
	AutoClearMinutes int
	Policy           PriorityPolicy
}

// DefaultSettings mirrors the stock club configuration.
func DefaultSettings() Settings {
	return Settings{
		MaxGroupSize:     4,
		SinglesMinutes:   60,
		DoublesMinutes:   90,
		MaxPlayMinutes:   210,
		AvgGameMinutes:   waitlist.DefaultAverageGameMinutes,
		AutoClearMinutes: 180,
		Policy:           FrontPair{},
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.MaxGroupSize <= 0 {
		s.MaxGroupSize = def.MaxGroupSize
	}
	if s.SinglesMinutes <= 0 {
		s.SinglesMinutes = def.SinglesMinutes
	}
	if s.DoublesMinutes <= 0 {
		s.DoublesMinutes = def.DoublesMinutes
	}
	if s.MaxPlayMinutes <= 0 {
		s.MaxPlayMinutes = def.MaxPlayMinutes
	}
	if s.AvgGameMinutes <= 0 {
		s.AvgGameMinutes = def.AvgGameMinutes
	}
	if s.AutoClearMinutes <= 0 {
		s.AutoClearMinutes = def.AutoClearMinutes
	}
	if s.Policy == nil {
		s.Policy = def.Policy
	}
	return s
}

// DurationForGroupSize returns the default session length for a group of
// size people, guests included. Four or more play doubles.
func (s Settings) DurationForGroupSize(size int) int {
	s = s.withDefaults()
	if size >= 4 {
		return s.DoublesMinutes
	}
	return s.SinglesMinutes
}
