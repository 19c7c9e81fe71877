package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/courtboard/internal/availability"
	"github.com/example/courtboard/internal/court"
	"github.com/example/courtboard/internal/queue"
	"github.com/example/courtboard/internal/waitlist"
)

// Release reasons recorded in court history.
const (
	ReleaseReasonManual      = "manual-clear"
	ReleaseReasonBumped      = "bumped"
	ReleaseReasonAutoCleared = "auto-cleared"
)

// AllocationService is the only component that changes the court snapshot.
// It runs one transaction at a time.
type AllocationService struct {
	mu          sync.Mutex
	store       SnapshotStore
	events      queue.Publisher
	settings    Settings
	now         func() time.Time
	idGenerator func() string
	logger      *slog.Logger
}

// NewAllocationService wires dependencies for court allocation.
func NewAllocationService(store SnapshotStore, events queue.Publisher, settings Settings, now func() time.Time, idGenerator func() string, logger *slog.Logger) *AllocationService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	return &AllocationService{
		store:       store,
		events:      events,
		settings:    settings.withDefaults(),
		now:         now,
		idGenerator: idGenerator,
		logger:      defaultLogger(logger),
	}
}

// Settings returns the effective settings.
func (s *AllocationService) Settings() Settings {
	return s.settings
}

func (s *AllocationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AllocationService", operation, attrs...)
}

// Allocate assigns a court to a group. Checks run in order: input,
// duplicates, queue priority, target eligibility; the first failure rejects
// the request without touching stored state.
func (s *AllocationService) Allocate(ctx context.Context, params AllocateParams) (result AllocationResult, err error) {
	if s == nil {
		return AllocationResult{}, fmt.Errorf("AllocationService is nil")
	}
	ctx, span := startSpan(ctx, "AllocationService.Allocate",
		attribute.Int("courtboard.court", params.Court),
		attribute.Bool("courtboard.override", params.OverridePriority),
	)
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "Allocate",
		"court", params.Court,
		"waitlist_entry_id", params.WaitlistEntryID,
		"override", params.OverridePriority,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "allocation rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"end", result.Session.End,
			"bumped", result.Bumped != nil,
			"tick", result.Snapshot.Tick,
		).InfoContext(ctx, "court allocated")
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, blocks, err := s.load(ctx)
	if err != nil {
		return AllocationResult{}, err
	}
	now := s.now()

	entryIndex := -1
	if params.WaitlistEntryID != "" {
		entryIndex = snap.WaitlistIndex(params.WaitlistEntryID)
		if entryIndex < 0 {
			err = &RejectionError{Reason: ReasonNotFound, Detail: "waitlist entry " + params.WaitlistEntryID}
			return
		}
		entry := snap.Waitlist[entryIndex]
		if len(params.Participants) == 0 {
			params.Participants = entry.Participants
			params.Guests = entry.Guests
		} else if !sameGroup(entry.Participants, params.Participants) {
			err = &RejectionError{
				Reason:   ReasonPriorityViolation,
				Detail:   "players do not match waitlist entry " + params.WaitlistEntryID,
				Position: entryIndex + 1,
			}
			return
		}
	}

	if params.DurationMinutes == 0 {
		params.DurationMinutes = s.settings.DurationForGroupSize(len(params.Participants) + max(params.Guests, 0))
	}
	if err = s.validateAllocation(snap, params); err != nil {
		return
	}

	if err = checkDuplicates(snap, params.Participants, params.WaitlistEntryID); err != nil {
		return
	}

	info := availability.Classify(snap, now, blocks, nil)
	offerable := availability.OfferableFrom(info)

	if len(snap.Waitlist) > 0 && !params.OverridePriority {
		prefix := s.settings.Policy.EligiblePrefix(len(offerable))
		if entryIndex < 0 {
			err = &RejectionError{Reason: ReasonPriorityViolation, Detail: "groups are waiting; join the waitlist"}
			return
		}
		if entryIndex >= prefix {
			err = &RejectionError{
				Reason:   ReasonPriorityViolation,
				Detail:   fmt.Sprintf("only the first %d waiting group(s) may play now", prefix),
				Position: entryIndex + 1,
			}
			return
		}
	}

	target := snap.Courts[params.Court-1]
	if target.Current != nil && target.Current.EndsAfter(now) {
		err = &RejectionError{Reason: ReasonActiveSessionPresent, Court: params.Court, Detail: "session ends " + target.Current.End.Format(time.RFC3339)}
		return
	}
	if !slices.Contains(offerable, params.Court) {
		status := info.Courts[params.Court-1].Status
		err = &RejectionError{Reason: ReasonTargetUnavailable, Court: params.Court, Detail: "court is " + string(status)}
		return
	}

	next := snap.Clone()
	slot := &next.Courts[params.Court-1]

	var bumped *court.ArchivedSession
	if slot.Current != nil {
		archived := archive(*slot.Current, now, ReleaseReasonBumped)
		archived.OriginalEnd = slot.Current.End
		slot.History = append(slot.History, archived)
		bumped = &archived
	}

	session := court.Session{
		Participants:    normalizeParticipants(params.Participants),
		Guests:          params.Guests,
		Start:           now,
		End:             now.Add(time.Duration(params.DurationMinutes) * time.Minute),
		DurationMinutes: params.DurationMinutes,
	}
	slot.Current = &session

	if entryIndex >= 0 {
		next.Waitlist = slices.Delete(next.Waitlist, entryIndex, entryIndex+1)
	}

	stored, err := s.store.Persist(ctx, next)
	if err != nil {
		err = mapGuardError(err)
		return
	}

	if bumped != nil {
		s.publishArchived(ctx, logger, params.Court, *bumped)
	}

	return AllocationResult{
		Court:    params.Court,
		Session:  session.Clone(),
		Bumped:   bumped,
		Snapshot: stored,
	}, nil
}

// Release clears a court, moving its session into history.
func (s *AllocationService) Release(ctx context.Context, params ReleaseParams) (result ReleaseResult, err error) {
	if s == nil {
		return ReleaseResult{}, fmt.Errorf("AllocationService is nil")
	}
	reason := strings.TrimSpace(params.Reason)
	if reason == "" {
		reason = ReleaseReasonManual
	}
	ctx, span := startSpan(ctx, "AllocationService.Release", attribute.Int("courtboard.court", params.Court))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "Release", "court", params.Court, "reason", reason)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "release rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "court released", "tick", result.Snapshot.Tick)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.store.Load(ctx)
	if err != nil {
		return ReleaseResult{}, err
	}
	if err = validateCourt(snap, params.Court); err != nil {
		return
	}
	if snap.Courts[params.Court-1].Current == nil {
		err = &RejectionError{Reason: ReasonNotOccupied, Court: params.Court}
		return
	}

	next := snap.Clone()
	slot := &next.Courts[params.Court-1]
	archived := archive(*slot.Current, s.now(), reason)
	slot.History = append(slot.History, archived)
	slot.Current = nil

	stored, err := s.store.Persist(ctx, next)
	if err != nil {
		err = mapGuardError(err)
		return
	}
	s.publishArchived(ctx, logger, params.Court, archived)

	return ReleaseResult{Court: params.Court, Archived: archived, Snapshot: stored}, nil
}

// Enqueue appends a group to the waitlist. Unless forced, a group is turned
// away with court-available while a court can be offered.
func (s *AllocationService) Enqueue(ctx context.Context, params EnqueueParams) (result EnqueueResult, err error) {
	if s == nil {
		return EnqueueResult{}, fmt.Errorf("AllocationService is nil")
	}
	ctx, span := startSpan(ctx, "AllocationService.Enqueue", attribute.Int("courtboard.group_size", len(params.Participants)))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "Enqueue", "group_size", len(params.Participants), "force", params.Force)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "enqueue rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "group enqueued", "entry_id", result.Entry.ID, "position", result.Position)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, blocks, err := s.load(ctx)
	if err != nil {
		return EnqueueResult{}, err
	}
	now := s.now()

	vErr := &ValidationError{}
	vErr.merge(waitlist.ValidateGroup(params.Participants, params.Guests, s.settings.MaxGroupSize))
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if err = checkDuplicates(snap, params.Participants, ""); err != nil {
		return
	}

	if !params.Force {
		if offerable := availability.Offerable(snap, now, blocks, nil, availability.ModeLookahead); len(offerable) > 0 {
			err = &RejectionError{Reason: ReasonCourtAvailable, Detail: fmt.Sprintf("courts %v can be offered now", offerable)}
			return
		}
	}

	entry := court.WaitlistEntry{
		ID:           s.idGenerator(),
		Participants: normalizeParticipants(params.Participants),
		Guests:       params.Guests,
		EnqueuedAt:   now,
	}
	next := snap.Clone()
	next.Waitlist = append(next.Waitlist, entry)

	stored, err := s.store.Persist(ctx, next)
	if err != nil {
		err = mapGuardError(err)
		return
	}
	return EnqueueResult{Entry: entry.Clone(), Position: len(stored.Waitlist), Snapshot: stored}, nil
}

// Withdraw removes a waiting group.
func (s *AllocationService) Withdraw(ctx context.Context, entryID string) (snap court.Snapshot, err error) {
	if s == nil {
		return court.Snapshot{}, fmt.Errorf("AllocationService is nil")
	}
	ctx, span := startSpan(ctx, "AllocationService.Withdraw", attribute.String("courtboard.entry_id", entryID))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "Withdraw", "entry_id", entryID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "withdraw failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "group withdrawn")
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Load(ctx)
	if err != nil {
		return court.Snapshot{}, err
	}
	idx := current.WaitlistIndex(entryID)
	if idx < 0 {
		err = &RejectionError{Reason: ReasonNotFound, Detail: "waitlist entry " + entryID}
		return
	}
	next := current.Clone()
	next.Waitlist = slices.Delete(next.Waitlist, idx, idx+1)

	snap, err = s.store.Persist(ctx, next)
	if err != nil {
		err = mapGuardError(err)
	}
	return
}

// MarkWet flags a court wet.
func (s *AllocationService) MarkWet(ctx context.Context, id int) (court.Snapshot, error) {
	return s.editWet(ctx, "MarkWet", id, true, func(wet []int) []int {
		if slices.Contains(wet, id) {
			return wet
		}
		return append(wet, id)
	})
}

// ClearWet removes a court's wet marker.
func (s *AllocationService) ClearWet(ctx context.Context, id int) (court.Snapshot, error) {
	return s.editWet(ctx, "ClearWet", id, true, func(wet []int) []int {
		return slices.DeleteFunc(wet, func(v int) bool { return v == id })
	})
}

// ClearAllWet removes every wet marker.
func (s *AllocationService) ClearAllWet(ctx context.Context) (court.Snapshot, error) {
	return s.editWet(ctx, "ClearAllWet", 0, false, func([]int) []int { return []int{} })
}

func (s *AllocationService) editWet(ctx context.Context, operation string, id int, checkCourt bool, edit func([]int) []int) (snap court.Snapshot, err error) {
	if s == nil {
		return court.Snapshot{}, fmt.Errorf("AllocationService is nil")
	}
	ctx, span := startSpan(ctx, "AllocationService."+operation, attribute.Int("courtboard.court", id))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, operation, "court", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "wet marker update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "wet markers updated", "wet", snap.WetCourts)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Load(ctx)
	if err != nil {
		return court.Snapshot{}, err
	}
	if checkCourt {
		if err = validateCourt(current, id); err != nil {
			return
		}
	}
	next := current.Clone()
	next.WetCourts = edit(next.WetCourts)
	slices.Sort(next.WetCourts)

	snap, err = s.store.Persist(ctx, next)
	if err != nil {
		err = mapGuardError(err)
	}
	return
}

// AutoClearOverdue releases every session that ended at least
// AutoClearMinutes ago, in a single write. No write happens when nothing is
// overdue.
func (s *AllocationService) AutoClearOverdue(ctx context.Context) (result AutoClearResult, err error) {
	if s == nil {
		return AutoClearResult{}, fmt.Errorf("AllocationService is nil")
	}
	ctx, span := startSpan(ctx, "AllocationService.AutoClearOverdue")
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "AutoClearOverdue", "threshold_minutes", s.settings.AutoClearMinutes)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "auto-clear failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if len(result.Courts) > 0 {
			logger.InfoContext(ctx, "overdue sessions cleared", "courts", result.Courts)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.store.Load(ctx)
	if err != nil {
		return AutoClearResult{}, err
	}
	now := s.now()
	cutoff := now.Add(-time.Duration(s.settings.AutoClearMinutes) * time.Minute)

	next := snap.Clone()
	cleared := make([]int, 0)
	archived := make([]court.ArchivedSession, 0)
	for i := range next.Courts {
		slot := &next.Courts[i]
		if slot.Current == nil || slot.Current.End.IsZero() || slot.Current.End.After(cutoff) {
			continue
		}
		a := archive(*slot.Current, now, ReleaseReasonAutoCleared)
		slot.History = append(slot.History, a)
		slot.Current = nil
		cleared = append(cleared, i+1)
		archived = append(archived, a)
	}
	if len(cleared) == 0 {
		return AutoClearResult{Courts: cleared, Snapshot: snap}, nil
	}

	stored, err := s.store.Persist(ctx, next)
	if err != nil {
		err = mapGuardError(err)
		return
	}
	for i, id := range cleared {
		s.publishArchived(ctx, logger, id, archived[i])
	}
	return AutoClearResult{Courts: cleared, Snapshot: stored}, nil
}

// Snapshot returns the stored snapshot.
func (s *AllocationService) Snapshot(ctx context.Context) (court.Snapshot, error) {
	return s.store.Load(ctx)
}

// Offerable returns the courts offerable now under mode.
func (s *AllocationService) Offerable(ctx context.Context, mode availability.Mode) ([]int, error) {
	snap, blocks, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return availability.Offerable(snap, s.now(), blocks, nil, mode), nil
}

// Board assembles classification, offerable courts, next-free instants and
// waitlist estimates for one instant.
func (s *AllocationService) Board(ctx context.Context) (Board, error) {
	snap, blocks, err := s.load(ctx)
	if err != nil {
		return Board{}, err
	}
	now := s.now()

	info := availability.Classify(snap, now, blocks, nil)
	nextFree := availability.NextFreeInstants(snap, now, blocks)

	positions := make([]int, len(snap.Waitlist))
	for i := range positions {
		positions[i] = i + 1
	}
	etas := waitlist.EstimateWait(now, positions, len(info.Free), nextFree, s.settings.AvgGameMinutes)

	views := make([]WaitlistView, 0, len(snap.Waitlist))
	for i, entry := range snap.Waitlist {
		views = append(views, WaitlistView{Position: i + 1, Entry: entry, EstimatedMinutes: etas[i]})
	}

	active := make([]court.Block, 0)
	for _, b := range blocks {
		if b.End.After(now) {
			active = append(active, b)
		}
	}

	return Board{
		Now:       now,
		Snapshot:  snap,
		Info:      info,
		Offerable: availability.OfferableFrom(info),
		MustWait:  availability.MustWait(info),
		NextFree:  nextFree,
		Waitlist:  views,
		Blocks:    active,
	}, nil
}

func (s *AllocationService) load(ctx context.Context) (court.Snapshot, []court.Block, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return court.Snapshot{}, nil, err
	}
	blocks, err := s.store.Blocks(ctx)
	if err != nil {
		return court.Snapshot{}, nil, err
	}
	return snap, blocks, nil
}

func (s *AllocationService) validateAllocation(snap court.Snapshot, params AllocateParams) error {
	vErr := &ValidationError{}
	if !snap.ValidCourt(params.Court) {
		vErr.add("court", fmt.Sprintf("court must be between 1 and %d", snap.CourtCount()))
	}
	if params.DurationMinutes < 1 || params.DurationMinutes > s.settings.MaxPlayMinutes {
		vErr.add("duration_minutes", fmt.Sprintf("duration must be between 1 and %d minutes", s.settings.MaxPlayMinutes))
	}
	vErr.merge(waitlist.ValidateGroup(params.Participants, params.Guests, s.settings.MaxGroupSize))
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func (s *AllocationService) publishArchived(ctx context.Context, logger *slog.Logger, id int, archived court.ArchivedSession) {
	event := queue.NewSessionArchivedEvent(id, archived)
	if err := s.events.PublishSessionArchived(ctx, event); err != nil {
		logger.WarnContext(ctx, "session archived event not delivered", "court", id, "error", err)
	}
}

func validateCourt(snap court.Snapshot, id int) error {
	if snap.ValidCourt(id) {
		return nil
	}
	vErr := &ValidationError{}
	vErr.add("court", fmt.Sprintf("court must be between 1 and %d", snap.CourtCount()))
	return vErr
}

// checkDuplicates rejects a group with anyone already on a court or in the
// queue. The entry being promoted is skipped.
func checkDuplicates(snap court.Snapshot, group []court.Participant, promoting string) error {
	for _, p := range group {
		for i, c := range snap.Courts {
			if c.Current == nil {
				continue
			}
			for _, playing := range c.Current.Participants {
				if p.SameAs(playing) {
					return &RejectionError{Reason: ReasonDuplicatePlaying, Detail: p.Name + " is already playing", Court: i + 1}
				}
			}
		}
		for i, entry := range snap.Waitlist {
			if promoting != "" && entry.ID == promoting {
				continue
			}
			for _, queued := range entry.Participants {
				if p.SameAs(queued) {
					return &RejectionError{Reason: ReasonDuplicateQueued, Detail: p.Name + " is already waiting", Position: i + 1}
				}
			}
		}
	}
	return nil
}

// sameGroup reports whether both groups name the same people, in any order.
func sameGroup(queued, requested []court.Participant) bool {
	if len(queued) != len(requested) {
		return false
	}
	matched := make([]bool, len(queued))
	for _, r := range requested {
		found := false
		for i, q := range queued {
			if !matched[i] && q.SameAs(r) {
				matched[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func normalizeParticipants(in []court.Participant) []court.Participant {
	out := make([]court.Participant, 0, len(in))
	for _, p := range in {
		p.Name = strings.Join(strings.Fields(p.Name), " ")
		out = append(out, p.WithDerivedID())
	}
	return out
}

func archive(session court.Session, at time.Time, reason string) court.ArchivedSession {
	return court.ArchivedSession{
		Session:   session.Clone(),
		ClearedAt: at,
		Reason:    reason,
	}
}
