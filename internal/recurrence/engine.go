package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/courtboard/internal/court"
	"github.com/example/courtboard/internal/logging"
)

// MaxOccurrences bounds a single expansion.
const MaxOccurrences = 5000

var (
	// ErrInvalidTemplate indicates a template failed validation.
	ErrInvalidTemplate = errors.New("recurrence: invalid template")
	// ErrInvalidRule indicates a recurrence rule failed validation.
	ErrInvalidRule = errors.New("recurrence: invalid rule")
	// ErrInvalidWindow indicates the expansion range is empty or inverted.
	ErrInvalidWindow = errors.New("recurrence: start must be before end")
	// ErrInvalidPeriod indicates an interval whose start is not before its end.
	ErrInvalidPeriod = errors.New("recurrence: period start must be before end")
	// ErrTooManyOccurrences indicates the range would exceed MaxOccurrences.
	ErrTooManyOccurrences = errors.New("recurrence: too many occurrences")
)

// Engine turns templates and recurrence rules into concrete blocks.
// Calendar stepping happens in the engine's location so daylight saving
// transitions keep the wall clock time of each occurrence.
type Engine struct {
	location    *time.Location
	now         func() time.Time
	idGenerator func() string
	logger      *slog.Logger
}

// NewEngine constructs an Engine stepping in loc. If loc is nil, UTC is used.
// A nil idGenerator falls back to random UUIDs for templates without an id.
func NewEngine(loc *time.Location, now func() time.Time, idGenerator func() string, logger *slog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	return &Engine{location: loc, now: now, idGenerator: idGenerator, logger: logger}
}

// Location returns the engine's stepping location.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// ValidateTemplate checks the fields ApplyTemplate relies on.
func ValidateTemplate(tpl court.BlockTemplate) error {
	switch {
	case strings.TrimSpace(tpl.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	case strings.TrimSpace(tpl.Reason) == "":
		return fmt.Errorf("%w: reason is required", ErrInvalidTemplate)
	case tpl.DurationMinutes <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidTemplate)
	case len(tpl.Courts) == 0:
		return fmt.Errorf("%w: at least one court is required", ErrInvalidTemplate)
	}
	for _, id := range tpl.Courts {
		if id < 1 {
			return fmt.Errorf("%w: invalid court number %d", ErrInvalidTemplate, id)
		}
	}
	return nil
}

// ApplyTemplate creates one block per template court starting at at.
func (e *Engine) ApplyTemplate(tpl court.BlockTemplate, at time.Time) ([]court.Block, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("%w: start time is required", ErrInvalidTemplate)
	}
	if err := ValidateTemplate(tpl); err != nil {
		return nil, err
	}

	prefix := strings.TrimSpace(tpl.ID)
	if prefix == "" {
		prefix = e.idGenerator()
	}

	end := at.Add(time.Duration(tpl.DurationMinutes) * time.Minute)
	created := e.now()
	blocks := make([]court.Block, 0, len(tpl.Courts))
	for _, id := range tpl.Courts {
		blocks = append(blocks, court.Block{
			ID:           prefix + "-" + strconv.Itoa(id) + "-" + strconv.FormatInt(at.Unix(), 10),
			Court:        id,
			Start:        at,
			End:          end,
			Reason:       tpl.Reason,
			Wet:          tpl.Wet,
			TemplateID:   tpl.ID,
			TemplateName: tpl.Name,
			CreatedAt:    created,
		})
	}
	return blocks, nil
}

// ValidateRule checks pattern, frequency and template presence.
func ValidateRule(rule court.RecurrenceRule) error {
	switch rule.Pattern {
	case court.PatternDaily, court.PatternWeekly, court.PatternMonthly:
	default:
		return fmt.Errorf("%w: pattern must be daily, weekly, or monthly", ErrInvalidRule)
	}
	if rule.Frequency < 1 {
		return fmt.Errorf("%w: frequency must be a positive number", ErrInvalidRule)
	}
	if rule.Template == nil {
		return fmt.Errorf("%w: template is required", ErrInvalidRule)
	}
	return nil
}

// ExpandRecurrence applies the rule's template at every occurrence in
// [start, end). Occurrences whose template application fails are logged and
// skipped. Monthly rules clamp to the last day of shorter months, measured
// from start's day of month, so Jan 31 yields Feb 28 (or 29) then Mar 31.
func (e *Engine) ExpandRecurrence(ctx context.Context, rule court.RecurrenceRule, start, end time.Time) ([]court.Block, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil, ErrInvalidWindow
	}

	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = e.logger
	}
	logger = logger.With("rule_id", rule.ID, "pattern", string(rule.Pattern), "frequency", rule.Frequency)

	anchor := start.In(e.Location())
	blocks := make([]court.Block, 0)
	for i := 0; ; i++ {
		if i >= MaxOccurrences {
			return nil, ErrTooManyOccurrences
		}
		occurrence := e.step(anchor, rule.Pattern, rule.Frequency*i)
		if !occurrence.Before(end) {
			break
		}
		applied, err := e.ApplyTemplate(*rule.Template, occurrence)
		if err != nil {
			logger.WarnContext(ctx, "skipping occurrence", "occurrence", occurrence, "error", err)
			continue
		}
		blocks = append(blocks, applied...)
	}
	return blocks, nil
}

// step returns the n-th step from anchor, always computed from the anchor so
// month-end clamping never accumulates.
func (e *Engine) step(anchor time.Time, pattern court.Pattern, n int) time.Time {
	switch pattern {
	case court.PatternDaily:
		return anchor.AddDate(0, 0, n)
	case court.PatternWeekly:
		return anchor.AddDate(0, 0, 7*n)
	default:
		return addMonthsClamped(anchor, n)
	}
}

func addMonthsClamped(anchor time.Time, months int) time.Time {
	y, m, d := anchor.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, anchor.Location())
	if last := daysIn(first.Year(), first.Month(), anchor.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) (bool, error) {
	if !aStart.Before(aEnd) || !bStart.Before(bEnd) {
		return false, ErrInvalidPeriod
	}
	return aStart.Before(bEnd) && bStart.Before(aEnd), nil
}

// Covers reports whether t lies in [start, end).
func Covers(start, end, t time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
