package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/courtboard/internal/court"
	"github.com/example/courtboard/internal/persistence"
	"github.com/example/courtboard/internal/testfixtures"
)

func TestStoreReadWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()

	_, err := store.Read(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	value := []byte("hello")
	require.NoError(t, store.Write(ctx, "k", value))
	value[0] = 'j'

	got, err := store.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, store.Close())
	_, err = store.Read(ctx, "k")
	assert.ErrorIs(t, err, persistence.ErrClosed)
}

func TestBusFanOutAndUnsubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bus := NewBus()

	var first, second []string
	unsubFirst, err := bus.Subscribe(ctx, "snapshot", func(p []byte) { first = append(first, string(p)) })
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, "snapshot", func(p []byte) { second = append(second, string(p)) })
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, "blocks", func(p []byte) { t.Fatalf("unexpected delivery on blocks: %s", p) })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "snapshot", []byte("a")))
	unsubFirst()
	unsubFirst()
	require.NoError(t, bus.Publish(ctx, "snapshot", []byte("b")))

	assert.Equal(t, []string{"a"}, first)
	assert.Equal(t, []string{"a", "b"}, second)
	assert.Equal(t, 1, bus.Subscribers("snapshot"))
}

func TestSnapshotRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	repo := persistence.NewSnapshotRepository(store, 4)

	empty, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, empty.CourtCount())

	blocks, err := repo.LoadBlocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, blocks)

	now := testfixtures.ReferenceTime()
	snap := testfixtures.NewSnapshot(4,
		testfixtures.WithSession(2, now, now.Add(testfixtures.Minutes(60)), "Alice", "Bob"),
		testfixtures.WithWaitlist("w1", "Carol"),
		testfixtures.WithTick(7),
	)
	_, err = repo.SaveSnapshot(ctx, snap)
	require.NoError(t, err)

	loaded, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded.Courts[1].Current)
	assert.Equal(t, "Bob", loaded.Courts[1].Current.Participants[1].Name)
	assert.True(t, loaded.Courts[1].Current.End.Equal(now.Add(testfixtures.Minutes(60))))
	assert.Equal(t, int64(7), loaded.Tick)
	assert.Equal(t, "w1", loaded.Waitlist[0].ID)

	_, err = repo.SaveBlocks(ctx, []court.Block{testfixtures.Block(1, now, now.Add(testfixtures.Minutes(30)), "lesson")})
	require.NoError(t, err)
	blocks, err = repo.LoadBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "lesson", blocks[0].Reason)
}

func TestSnapshotRepositoryReadsLegacyDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	legacy := map[string]any{
		"courts": []any{
			map[string]any{"players": []string{"Zed"}, "startTime": "2024-01-02T15:00:00Z", "endTime": "2024-01-02T16:00:00Z"},
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, persistence.KeySnapshot, data))

	snap, err := persistence.NewSnapshotRepository(store, 3).LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.CourtCount())
	require.NotNil(t, snap.Courts[0].Current)
	assert.Equal(t, "Zed", snap.Courts[0].Current.Participants[0].Name)
}
