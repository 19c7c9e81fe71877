package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/courtboard/internal/court"
	"github.com/example/courtboard/internal/guard"
	"github.com/example/courtboard/internal/persistence"
	"github.com/example/courtboard/internal/persistence/memory"
	"github.com/example/courtboard/internal/queue"
	"github.com/example/courtboard/internal/testfixtures"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.SessionArchivedEvent
}

func (p *recordingPublisher) PublishSessionArchived(_ context.Context, event queue.SessionArchivedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []queue.SessionArchivedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.SessionArchivedEvent(nil), p.events...)
}

type allocationHarness struct {
	service *AllocationService
	repo    *persistence.SnapshotRepository
	clock   *testfixtures.Clock
	events  *recordingPublisher
}

func newAllocationHarness(t *testing.T, settings Settings) *allocationHarness {
	t.Helper()

	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	repo := persistence.NewSnapshotRepository(memory.NewStore(), 12)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := guard.New(repo, memory.NewBus(), guard.Options{Now: clock.NowFunc(), Logger: logger})
	events := &recordingPublisher{}

	return &allocationHarness{
		service: NewAllocationService(g, events, settings, clock.NowFunc(), testfixtures.NewIDGenerator("w").NextFunc(), logger),
		repo:    repo,
		clock:   clock,
		events:  events,
	}
}

func (h *allocationHarness) seed(t *testing.T, opts ...testfixtures.SnapshotOption) {
	t.Helper()
	_, err := h.repo.SaveSnapshot(context.Background(), testfixtures.NewSnapshot(12, opts...))
	require.NoError(t, err)
}

func (h *allocationHarness) seedBlocks(t *testing.T, blocks ...court.Block) {
	t.Helper()
	_, err := h.repo.SaveBlocks(context.Background(), blocks)
	require.NoError(t, err)
}

func (h *allocationHarness) stored(t *testing.T) court.Snapshot {
	t.Helper()
	snap, err := h.repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func requireReason(t *testing.T, err error, want Reason) *RejectionError {
	t.Helper()
	require.Error(t, err)
	var rErr *RejectionError
	require.True(t, errors.As(err, &rErr), "expected RejectionError, got %T: %v", err, err)
	require.Equal(t, want, rErr.Reason)
	return rErr
}

func TestAllocate_AssignsFreeCourt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newAllocationHarness(t, DefaultSettings())
	now := h.clock.Now()

	result, err := h.service.Allocate(ctx, AllocateParams{
		Court:        4,
		Participants: []court.Participant{{Name: "  Alice   Smith "}, {Name: "Bob"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Court)
	assert.Nil(t, result.Bumped)
	assert.Equal(t, now, result.Session.Start)
	assert.Equal(t, now.Add(60*time.Minute), result.Session.End)
	assert.Equal(t, "Alice Smith", result.Session.Participants[0].Name)
	assert.Equal(t, court.DeriveID("alice smith"), result.Session.Participants[0].ID)

	stored := h.stored(t)
	require.NotNil(t, stored.Courts[3].Current)
	assert.Equal(t, result.Snapshot.Tick, stored.Tick)
	assert.Empty(t, h.events.Events())
}

func TestAllocate_DoublesDurationForFourPlayers(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	result, err := h.service.Allocate(context.Background(), AllocateParams{
		Court:        1,
		Participants: testfixtures.Players("A", "B", "C"),
		Guests:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, 90, result.Session.DurationMinutes)
}

func TestAllocate_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	_, err := h.service.Allocate(context.Background(), AllocateParams{
		Court:           13,
		Participants:    testfixtures.Players("A", " "),
		DurationMinutes: 500,
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "court")
	assert.Contains(t, vErr.FieldErrors, "duration_minutes")
	assert.Contains(t, vErr.FieldErrors, "players[1]")
	assert.Equal(t, ReasonInvalidInput, ReasonOf(err))
}

func TestAllocate_DuplicatePlaying(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	now := h.clock.Now()
	h.seed(t, testfixtures.WithSessionEndingAt(5, now.Add(55*time.Minute), "Alice", "Eve"))

	_, err := h.service.Allocate(context.Background(), AllocateParams{
		Court:        1,
		Participants: testfixtures.Players("alice"),
	})
	rErr := requireReason(t, err, ReasonDuplicatePlaying)
	assert.Equal(t, 5, rErr.Court)
	assert.Nil(t, h.stored(t).Courts[0].Current)
}

func TestAllocate_DuplicateQueued(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	h.seed(t, testfixtures.WithWaitlist("w-a", "Zed"), testfixtures.WithWaitlist("w-b", "Bob"))

	_, err := h.service.Allocate(context.Background(), AllocateParams{
		Court:            1,
		Participants:     testfixtures.Players("Bob"),
		OverridePriority: true,
	})
	rErr := requireReason(t, err, ReasonDuplicateQueued)
	assert.Equal(t, 2, rErr.Position)
}

func TestAllocate_PriorityViolationForWalkIn(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	h.seed(t, testfixtures.WithWaitlist("w-a", "Carol"))

	_, err := h.service.Allocate(context.Background(), AllocateParams{
		Court:        1,
		Participants: testfixtures.Players("Dave"),
	})
	requireReason(t, err, ReasonPriorityViolation)
	assert.True(t, errors.Is(err, ErrPriorityViolation))

	_, err = h.service.Allocate(context.Background(), AllocateParams{
		Court:            1,
		Participants:     testfixtures.Players("Dave"),
		OverridePriority: true,
	})
	require.NoError(t, err)
}

func TestAllocate_PromotesWaitlistEntry(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	h.seed(t, testfixtures.WithWaitlist("w-a", "Carol", "Dan"))

	result, err := h.service.Allocate(context.Background(), AllocateParams{Court: 2, WaitlistEntryID: "w-a"})
	require.NoError(t, err)
	assert.Len(t, result.Session.Participants, 2)
	assert.Empty(t, result.Snapshot.Waitlist)
	assert.Empty(t, h.stored(t).Waitlist)

	_, err = h.service.Allocate(context.Background(), AllocateParams{Court: 3, WaitlistEntryID: "w-a"})
	requireReason(t, err, ReasonNotFound)
}

func TestAllocate_WaitlistEntryRequiresMatchingGroup(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	h.seed(t, testfixtures.WithWaitlist("w-front", "Queued One", "Queued Two"))

	_, err := h.service.Allocate(context.Background(), AllocateParams{
		Court:           1,
		Participants:    testfixtures.Players("Walk In", "Stranger"),
		WaitlistEntryID: "w-front",
	})
	rejection := requireReason(t, err, ReasonPriorityViolation)
	assert.Equal(t, 1, rejection.Position)

	snap := h.stored(t)
	assert.Nil(t, snap.Courts[0].Current)
	require.Len(t, snap.Waitlist, 1)
	assert.Equal(t, "w-front", snap.Waitlist[0].ID)

	_, err = h.service.Allocate(context.Background(), AllocateParams{
		Court:           1,
		Participants:    testfixtures.Players("Queued One"),
		WaitlistEntryID: "w-front",
	})
	requireReason(t, err, ReasonPriorityViolation)

	result, err := h.service.Allocate(context.Background(), AllocateParams{
		Court:           1,
		Participants:    testfixtures.Players(" queued   two", "Queued One"),
		Guests:          1,
		WaitlistEntryID: "w-front",
	})
	require.NoError(t, err)
	assert.Len(t, result.Session.Participants, 2)
	assert.Equal(t, 1, result.Session.Guests)
	assert.Empty(t, h.stored(t).Waitlist)
}

func TestAllocate_PriorityPolicyIsConfigurable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		policy   PriorityPolicy
		freeOnly bool
		want     Reason
	}{
		{name: "front pair admits second group when two courts are offerable", policy: FrontPair{}},
		{name: "front pair narrows to front group with one offerable court", policy: FrontPair{}, freeOnly: true, want: ReasonPriorityViolation},
		{name: "front only always requires the front group", policy: FrontOnly{}, want: ReasonPriorityViolation},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			settings := DefaultSettings()
			settings.Policy = tt.policy
			h := newAllocationHarness(t, settings)
			now := h.clock.Now()

			opts := []testfixtures.SnapshotOption{
				testfixtures.WithWaitlist("w-a", "First"),
				testfixtures.WithWaitlist("w-b", "Second"),
			}
			if tt.freeOnly {
				for id := 2; id <= 12; id++ {
					opts = append(opts, testfixtures.WithSessionEndingAt(id, now.Add(time.Hour), fmt.Sprintf("P%d", id)))
				}
			}
			h.seed(t, opts...)

			_, err := h.service.Allocate(context.Background(), AllocateParams{Court: 1, WaitlistEntryID: "w-b"})
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			rErr := requireReason(t, err, tt.want)
			assert.Equal(t, 2, rErr.Position)
		})
	}
}

func TestAllocate_NeverPreemptsActiveSession(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	now := h.clock.Now()
	h.seed(t, testfixtures.WithAllOccupiedUntil(now.Add(10*time.Minute)))

	_, err := h.service.Allocate(context.Background(), AllocateParams{
		Court:            3,
		Participants:     testfixtures.Players("Newcomer"),
		OverridePriority: true,
	})
	rErr := requireReason(t, err, ReasonActiveSessionPresent)
	assert.Equal(t, 3, rErr.Court)
}

func TestAllocate_NoPreemptionForGeneratedStates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newAllocationHarness(t, DefaultSettings())
	rng := rand.New(rand.NewSource(7))

	for iteration := 0; iteration < 60; iteration++ {
		now := h.clock.Now()
		opts := make([]testfixtures.SnapshotOption, 0, 12)
		future := make(map[int]bool)
		for id := 1; id <= 12; id++ {
			name := fmt.Sprintf("seed-%d-%d", iteration, id)
			switch rng.Intn(3) {
			case 0:
			case 1:
				opts = append(opts, testfixtures.WithSessionEndingAt(id, now.Add(time.Duration(1+rng.Intn(120))*time.Minute), name))
				future[id] = true
			case 2:
				opts = append(opts, testfixtures.WithSessionEndingAt(id, now.Add(-time.Duration(rng.Intn(120))*time.Minute), name))
			}
		}
		if rng.Intn(4) == 0 {
			opts = append(opts, testfixtures.WithWet(1+rng.Intn(12)))
		}
		h.seed(t, opts...)

		target := 1 + rng.Intn(12)
		_, err := h.service.Allocate(ctx, AllocateParams{
			Court:            target,
			Participants:     testfixtures.Players(fmt.Sprintf("walk-in-%d", iteration)),
			OverridePriority: true,
		})
		if future[target] {
			requireReason(t, err, ReasonActiveSessionPresent)
		}
		if err == nil {
			assert.False(t, future[target], "iteration %d preempted court %d", iteration, target)
		}
	}
}

func TestAllocate_BumpsOvertimeSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newAllocationHarness(t, DefaultSettings())
	now := h.clock.Now()
	oldEnd := now.Add(-5 * time.Minute)

	opts := []testfixtures.SnapshotOption{testfixtures.WithAllOccupiedUntil(now.Add(time.Hour))}
	opts = append(opts, testfixtures.WithSessionEndingAt(3, oldEnd, "Late", "Larry"))
	h.seed(t, opts...)

	result, err := h.service.Allocate(ctx, AllocateParams{Court: 3, Participants: testfixtures.Players("Fresh")})
	require.NoError(t, err)
	require.NotNil(t, result.Bumped)
	assert.Equal(t, ReleaseReasonBumped, result.Bumped.Reason)
	assert.Equal(t, oldEnd, result.Bumped.OriginalEnd)
	assert.Equal(t, now, result.Bumped.ClearedAt)

	stored := h.stored(t)
	require.Len(t, stored.Courts[2].History, 1)
	assert.Equal(t, "Late", stored.Courts[2].History[0].Participants[0].Name)
	assert.Equal(t, "Fresh", stored.Courts[2].Current.Participants[0].Name)

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Court)
	assert.Equal(t, ReleaseReasonBumped, events[0].Reason)
}

func TestAllocate_TargetUnavailable(t *testing.T) {
	t.Parallel()

	t.Run("overtime court while a free court exists", func(t *testing.T) {
		t.Parallel()
		h := newAllocationHarness(t, DefaultSettings())
		h.seed(t, testfixtures.WithSessionEndingAt(2, h.clock.In(-5), "Old"))

		_, err := h.service.Allocate(context.Background(), AllocateParams{Court: 2, Participants: testfixtures.Players("New")})
		rErr := requireReason(t, err, ReasonTargetUnavailable)
		assert.Equal(t, 2, rErr.Court)
	})

	t.Run("wet court", func(t *testing.T) {
		t.Parallel()
		h := newAllocationHarness(t, DefaultSettings())
		h.seed(t, testfixtures.WithWet(1))

		_, err := h.service.Allocate(context.Background(), AllocateParams{Court: 1, Participants: testfixtures.Players("New")})
		requireReason(t, err, ReasonTargetUnavailable)
	})

	t.Run("blocked court", func(t *testing.T) {
		t.Parallel()
		h := newAllocationHarness(t, DefaultSettings())
		now := h.clock.Now()
		h.seedBlocks(t, testfixtures.Block(6, now.Add(-time.Minute), now.Add(time.Hour), "lesson"))

		_, err := h.service.Allocate(context.Background(), AllocateParams{Court: 6, Participants: testfixtures.Players("New")})
		requireReason(t, err, ReasonTargetUnavailable)
	})
}

func TestRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newAllocationHarness(t, DefaultSettings())
	now := h.clock.Now()
	h.seed(t,
		testfixtures.WithSessionEndingAt(1, now.Add(20*time.Minute), "Only"),
	)

	_, err := h.service.Release(ctx, ReleaseParams{Court: 2})
	requireReason(t, err, ReasonNotOccupied)

	_, err = h.service.Release(ctx, ReleaseParams{Court: 0})
	require.ErrorIs(t, err, ErrInvalidInput)

	result, err := h.service.Release(ctx, ReleaseParams{Court: 1})
	require.NoError(t, err)
	assert.Equal(t, ReleaseReasonManual, result.Archived.Reason)
	assert.Zero(t, result.Snapshot.ActiveSessions())

	stored := h.stored(t)
	assert.Nil(t, stored.Courts[0].Current)
	require.Len(t, stored.Courts[0].History, 1)

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, ReleaseReasonManual, events[0].Reason)
}

type refusingStore struct {
	snap court.Snapshot
	err  error
}

func (s refusingStore) Load(context.Context) (court.Snapshot, error)    { return s.snap.Clone(), nil }
func (s refusingStore) Blocks(context.Context) ([]court.Block, error)   { return []court.Block{}, nil }
func (s refusingStore) SaveBlocks(context.Context, []court.Block) error { return nil }
func (s refusingStore) Persist(context.Context, court.Snapshot) (court.Snapshot, error) {
	return s.snap.Clone(), s.err
}

func TestGuardRefusalsBecomeRejections(t *testing.T) {
	t.Parallel()

	snap := testfixtures.NewSnapshot(12, testfixtures.WithSessionEndingAt(1, testfixtures.ReferenceTime().Add(time.Hour), "A"))
	for _, tt := range []struct {
		err  error
		want Reason
	}{
		{err: guard.ErrWriteRefused, want: ReasonWriteRefused},
		{err: guard.ErrStaleSnapshot, want: ReasonStaleSnapshot},
	} {
		clock := testfixtures.NewClock(testfixtures.ReferenceTime())
		service := NewAllocationService(refusingStore{snap: snap, err: tt.err}, nil, DefaultSettings(), clock.NowFunc(), nil, nil)

		_, err := service.Release(context.Background(), ReleaseParams{Court: 1})
		requireReason(t, err, tt.want)
	}
}

func TestEnqueueAndWithdraw(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newAllocationHarness(t, DefaultSettings())

	_, err := h.service.Enqueue(ctx, EnqueueParams{Participants: testfixtures.Players("Early")})
	requireReason(t, err, ReasonCourtAvailable)

	h.seed(t, testfixtures.WithAllOccupiedUntil(h.clock.In(30)))

	first, err := h.service.Enqueue(ctx, EnqueueParams{Participants: testfixtures.Players("Gina", "Hal")})
	require.NoError(t, err)
	assert.Equal(t, "w-1", first.Entry.ID)
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, h.clock.Now(), first.Entry.EnqueuedAt)

	_, err = h.service.Enqueue(ctx, EnqueueParams{Participants: testfixtures.Players("gina")})
	rErr := requireReason(t, err, ReasonDuplicateQueued)
	assert.Equal(t, 1, rErr.Position)

	_, err = h.service.Enqueue(ctx, EnqueueParams{Participants: testfixtures.Players("Player 01")})
	requireReason(t, err, ReasonDuplicatePlaying)

	_, err = h.service.Enqueue(ctx, EnqueueParams{Participants: testfixtures.Players("A", "B", "C", "D", "E")})
	require.ErrorIs(t, err, ErrInvalidInput)

	second, err := h.service.Enqueue(ctx, EnqueueParams{Participants: testfixtures.Players("Ivy")})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)

	snap, err := h.service.Withdraw(ctx, first.Entry.ID)
	require.NoError(t, err)
	require.Len(t, snap.Waitlist, 1)
	assert.Equal(t, second.Entry.ID, snap.Waitlist[0].ID)

	_, err = h.service.Withdraw(ctx, first.Entry.ID)
	requireReason(t, err, ReasonNotFound)
}

func TestEnqueueForceSkipsAvailabilityCheck(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	result, err := h.service.Enqueue(context.Background(), EnqueueParams{Participants: testfixtures.Players("Eager"), Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Position)
}

func TestWetMarkers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newAllocationHarness(t, DefaultSettings())

	snap, err := h.service.MarkWet(ctx, 7)
	require.NoError(t, err)
	snap, err = h.service.MarkWet(ctx, 2)
	require.NoError(t, err)
	snap, err = h.service.MarkWet(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 7}, snap.WetCourts)

	snap, err = h.service.ClearWet(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, snap.WetCourts)

	_, err = h.service.MarkWet(ctx, 99)
	require.ErrorIs(t, err, ErrInvalidInput)

	snap, err = h.service.ClearAllWet(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.WetCourts)
	assert.Empty(t, h.stored(t).WetCourts)
}

func TestAutoClearOverdue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newAllocationHarness(t, DefaultSettings())
	h.seed(t,
		testfixtures.WithSessionEndingAt(1, h.clock.In(-181), "Forgot"),
		testfixtures.WithSessionEndingAt(2, h.clock.In(-10), "Lingering"),
		testfixtures.WithSessionEndingAt(3, h.clock.In(40), "Playing"),
	)

	result, err := h.service.AutoClearOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, result.Courts)

	stored := h.stored(t)
	assert.Nil(t, stored.Courts[0].Current)
	assert.Equal(t, ReleaseReasonAutoCleared, stored.Courts[0].History[0].Reason)
	assert.NotNil(t, stored.Courts[1].Current)
	assert.NotNil(t, stored.Courts[2].Current)
	require.Len(t, h.events.Events(), 1)

	again, err := h.service.AutoClearOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Courts)
	assert.Equal(t, stored.Tick, again.Snapshot.Tick)
}

func TestBoardEstimatesWaitlist(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	h.seed(t,
		testfixtures.WithAllOccupiedUntil(h.clock.In(30)),
		testfixtures.WithWaitlist("w-a", "Q1"),
		testfixtures.WithWaitlist("w-b", "Q2"),
	)

	board, err := h.service.Board(context.Background())
	require.NoError(t, err)
	assert.True(t, board.MustWait)
	assert.Empty(t, board.Offerable)
	assert.Len(t, board.NextFree, 12)
	require.Len(t, board.Waitlist, 2)
	assert.Equal(t, 30, board.Waitlist[0].EstimatedMinutes)
	assert.Equal(t, 30, board.Waitlist[1].EstimatedMinutes)
	assert.Equal(t, 12, board.Info.Total)
}

func TestOfferable(t *testing.T) {
	t.Parallel()

	h := newAllocationHarness(t, DefaultSettings())
	h.seed(t, testfixtures.WithAllOccupiedUntil(h.clock.In(30)), testfixtures.WithSessionEndingAt(3, h.clock.In(-5), "Late"))

	got, err := h.service.Offerable(context.Background(), "strict")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, got)
}
