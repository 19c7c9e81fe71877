package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/courtboard/internal/court"
)

// Storage keys and bus topics shared by every backend.
const (
	KeySnapshot = "courtboard:snapshot"
	KeyBlocks   = "courtboard:blocks"

	TopicSnapshot = "snapshot"
	TopicBlocks   = "blocks"
)

// KVStore is a synchronous key-value store holding opaque documents.
type KVStore interface {
	// Read returns ErrNotFound when the key has never been written.
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
}

// Bus announces documents to subscribers.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe delivers every payload published on topic until the returned
	// function is called or ctx is done.
	Subscribe(ctx context.Context, topic string, handler func([]byte)) (func(), error)
}

// SnapshotRepository encodes the snapshot and block list into a KVStore.
type SnapshotRepository struct {
	store  KVStore
	courts int
}

// NewSnapshotRepository returns a repository that always yields snapshots
// with exactly courts entries.
func NewSnapshotRepository(store KVStore, courts int) *SnapshotRepository {
	return &SnapshotRepository{store: store, courts: courts}
}

// CourtCount returns N.
func (r *SnapshotRepository) CourtCount() int {
	return r.courts
}

// LoadSnapshot returns the persisted snapshot, or an empty pool when none
// has been stored yet.
func (r *SnapshotRepository) LoadSnapshot(ctx context.Context) (court.Snapshot, error) {
	data, err := r.store.Read(ctx, KeySnapshot)
	if errors.Is(err, ErrNotFound) || (err == nil && len(data) == 0) {
		return court.NewSnapshot(r.courts), nil
	}
	if err != nil {
		return court.Snapshot{}, fmt.Errorf("persistence: read snapshot: %w", err)
	}
	return court.DecodeSnapshot(data, r.courts)
}

// SaveSnapshot writes snap and returns the encoded document.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snap court.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("persistence: encode snapshot: %w", err)
	}
	if err := r.store.Write(ctx, KeySnapshot, data); err != nil {
		return nil, fmt.Errorf("persistence: write snapshot: %w", err)
	}
	return data, nil
}

// LoadBlocks returns the persisted block list; a missing list is empty.
func (r *SnapshotRepository) LoadBlocks(ctx context.Context) ([]court.Block, error) {
	data, err := r.store.Read(ctx, KeyBlocks)
	if errors.Is(err, ErrNotFound) || (err == nil && len(data) == 0) {
		return []court.Block{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: read blocks: %w", err)
	}
	var blocks []court.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("persistence: decode blocks: %w", err)
	}
	if blocks == nil {
		blocks = []court.Block{}
	}
	return blocks, nil
}

// SaveBlocks writes the block list and returns the encoded document.
func (r *SnapshotRepository) SaveBlocks(ctx context.Context, blocks []court.Block) ([]byte, error) {
	if blocks == nil {
		blocks = []court.Block{}
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return nil, fmt.Errorf("persistence: encode blocks: %w", err)
	}
	if err := r.store.Write(ctx, KeyBlocks, data); err != nil {
		return nil, fmt.Errorf("persistence: write blocks: %w", err)
	}
	return data, nil
}
