package store

import (
	"context"
	"time"

	"github.com/tai-cha/tainy-tune/internal/types"
)

// Store defines the interface contract for journal persistence. The same
// contract backs the on-device store consumed by the sync core and the
// reference server's canonical store.
type Store interface {
	// Entry CRUD, keyed by the client-generated UUID.
	PutEntry(ctx context.Context, entry types.JournalEntry) error
	GetEntry(ctx context.Context, id string) (*types.JournalEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context, params types.ListParams) ([]types.JournalEntry, error)

	// Reconciliation support.
	UpsertRemote(ctx context.Context, entries []types.JournalEntry) error
	UnsyncedIDs(ctx context.Context) (map[string]struct{}, error)
	MarkSynced(ctx context.Context, id string) error

	// Mutation queue, drained oldest-first by sequence number.
	Enqueue(ctx context.Context, action types.SyncAction, payload any) (int64, error)
	Queue(ctx context.Context) ([]types.SyncQueueItem, error)
	Dequeue(ctx context.Context, seq int64) error

	// Sync watermark.
	LastSyncedAt(ctx context.Context) (*time.Time, error)
	SetLastSyncedAt(ctx context.Context, t time.Time) error

	// System settings (server side of the edit-permission flag).
	Settings(ctx context.Context) (*types.PublicSettings, error)
	SetJournalEditing(ctx context.Context, allowed bool) error

	Stats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}
