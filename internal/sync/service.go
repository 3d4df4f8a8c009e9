// Package sync implements the offline-first synchronization core: a push
// phase draining locally queued mutations to the journal service, and a
// pull phase reconciling server-side changes into the local store.
//
// Known limitation: there is no propagation of server-side deletions.
// An entry deleted by another device persists in this device's local store
// indefinitely; pull only adds or overwrites, never deletes.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tai-cha/tainy-tune/internal/client"
	"github.com/tai-cha/tainy-tune/internal/store"
	"github.com/tai-cha/tainy-tune/internal/types"
)

// Remote defines the journal service operations the sync core consumes.
type Remote interface {
	PublicSettings(ctx context.Context) (*types.PublicSettings, error)
	CreateJournal(ctx context.Context, entry types.JournalEntry) (*types.JournalEntry, error)
	UpdateJournal(ctx context.Context, id string, entry types.JournalEntry) (*types.JournalEntry, error)
	DeleteJournal(ctx context.Context, id string) error
	ListJournals(ctx context.Context, params types.ListParams) ([]types.JournalEntry, error)
}

// Compile-time check that the HTTP client satisfies Remote.
var _ Remote = (*client.Client)(nil)

// Service owns the sync state for one device: the single-flight guard and
// the persisted pull watermark accessor. Push and Pull share the guard, so
// a call while any cycle is in flight is a complete no-op; only the
// connectivity trigger re-arms a skipped cycle.
type Service struct {
	store   store.Store
	remote  Remote
	syncing atomic.Bool
}

// NewService creates a sync service over the given local store and remote.
func NewService(s store.Store, r Remote) *Service {
	return &Service{store: s, remote: r}
}

// Syncing reports whether a cycle is currently in flight.
func (s *Service) Syncing() bool {
	return s.syncing.Load()
}

func (s *Service) begin() bool {
	return s.syncing.CompareAndSwap(false, true)
}

func (s *Service) end() {
	s.syncing.Store(false)
}

// Sync runs one full Push-then-Pull cycle under a single guard acquisition.
// Pull runs even when Push reported per-task failures, but not when Push
// aborted at the top level (the remote is clearly unreachable). A nil stats
// result means the cycle was skipped because another one is in flight.
func (s *Service) Sync(ctx context.Context) (*types.SyncStats, error) {
	if !s.begin() {
		slog.Debug("sync skipped, cycle in flight", "component", "sync")
		return nil, nil
	}
	defer s.end()

	stats, err := s.push(ctx)
	if err != nil {
		return stats, err
	}

	pullStats, err := s.pull(ctx, false)
	if pullStats != nil {
		stats.Pulled = pullStats.Pulled
		stats.Conflicts = pullStats.Conflicts
		stats.Errors += pullStats.Errors
	}
	return stats, err
}

// Push drains the mutation queue. See Sync for the nil-stats contract.
func (s *Service) Push(ctx context.Context) (*types.SyncStats, error) {
	if !s.begin() {
		slog.Debug("push skipped, cycle in flight", "component", "sync")
		return nil, nil
	}
	defer s.end()

	return s.push(ctx)
}

// Pull reconciles remote changes into the local store. forceFull ignores
// the watermark for this one cycle without clearing it.
func (s *Service) Pull(ctx context.Context, forceFull bool) (*types.SyncStats, error) {
	if !s.begin() {
		slog.Debug("pull skipped, cycle in flight", "component", "sync")
		return nil, nil
	}
	defer s.end()

	return s.pull(ctx, forceFull)
}

// push processes queue items oldest-first, strictly sequentially. A task is
// dequeued on success or fatal classification and left in place on
// transient failure; one task's outcome never aborts the rest of the batch.
func (s *Service) push(ctx context.Context) (*types.SyncStats, error) {
	start := time.Now()
	stats := &types.SyncStats{}

	// The edit-permission flag is fetched once per cycle so a mid-cycle
	// flip cannot produce mixed outcomes within one batch. If even this
	// fails the whole cycle aborts with the queue untouched.
	settings, err := s.remote.PublicSettings(ctx)
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("fetch settings: %w", err)
	}

	queue, err := s.store.Queue(ctx)
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("read queue: %w", err)
	}

	for _, task := range queue {
		s.processTask(ctx, task, settings.AllowJournalEditing, stats)
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

func (s *Service) processTask(ctx context.Context, task types.SyncQueueItem, canEdit bool, stats *types.SyncStats) {
	var payload types.JournalEntry
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		slog.Error("dropping task with malformed payload",
			"component", "sync",
			"seq", task.Seq,
			"action", task.Action,
			"error", err,
		)
		s.drop(ctx, task, stats)
		return
	}

	// A task without a target id cannot be retried meaningfully; it must
	// not block the remaining queue.
	if payload.ID == "" {
		slog.Error("dropping task without entry id",
			"component", "sync",
			"seq", task.Seq,
			"action", task.Action,
		)
		s.drop(ctx, task, stats)
		return
	}

	switch task.Action {
	case types.ActionCreate:
		if _, err := s.remote.CreateJournal(ctx, payload); err != nil {
			s.classify(ctx, task, payload.ID, err, stats)
			return
		}
		s.confirm(ctx, payload.ID)
		s.dequeue(ctx, task)
		stats.Pushed++

	case types.ActionUpdate:
		if !canEdit {
			// Editing is globally frozen: resolve the task as an
			// accepted no-op rather than retrying forever. The edit
			// persists locally.
			slog.Warn("editing disabled, resolving update without contact",
				"component", "sync",
				"entry_id", payload.ID,
			)
			s.confirm(ctx, payload.ID)
			s.dequeue(ctx, task)
			stats.Skipped++
			return
		}
		if _, err := s.remote.UpdateJournal(ctx, payload.ID, payload); err != nil {
			s.classify(ctx, task, payload.ID, err, stats)
			return
		}
		s.confirm(ctx, payload.ID)
		s.dequeue(ctx, task)
		stats.Pushed++

	case types.ActionDelete:
		if err := s.remote.DeleteJournal(ctx, payload.ID); err != nil {
			s.classify(ctx, task, payload.ID, err, stats)
			return
		}
		if err := s.store.DeleteEntry(ctx, payload.ID); err != nil {
			slog.Error("local delete failed after remote delete",
				"component", "sync",
				"entry_id", payload.ID,
				"error", err,
			)
		}
		s.dequeue(ctx, task)
		stats.Pushed++

	default:
		slog.Error("dropping task with unknown action",
			"component", "sync",
			"seq", task.Seq,
			"action", task.Action,
		)
		s.drop(ctx, task, stats)
	}
}

// classify applies the per-task error taxonomy: a 4xx response can never
// succeed with the same payload and is abandoned; anything else stays
// queued for the next cycle.
func (s *Service) classify(ctx context.Context, task types.SyncQueueItem, entryID string, err error, stats *types.SyncStats) {
	if client.IsFatal(err) {
		slog.Warn("fatal task error, abandoning",
			"component", "sync",
			"seq", task.Seq,
			"action", task.Action,
			"entry_id", entryID,
			"error", err,
		)
		s.drop(ctx, task, stats)
		return
	}

	slog.Warn("transient task error, will retry next cycle",
		"component", "sync",
		"seq", task.Seq,
		"action", task.Action,
		"entry_id", entryID,
		"error", err,
	)
	stats.Errors++
}

func (s *Service) drop(ctx context.Context, task types.SyncQueueItem, stats *types.SyncStats) {
	s.dequeue(ctx, task)
	stats.Dropped++
}

func (s *Service) dequeue(ctx context.Context, task types.SyncQueueItem) {
	if err := s.store.Dequeue(ctx, task.Seq); err != nil {
		slog.Error("dequeue failed",
			"component", "sync",
			"seq", task.Seq,
			"error", err,
		)
	}
}

func (s *Service) confirm(ctx context.Context, id string) {
	err := s.store.MarkSynced(ctx, id)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		// The entry may have been deleted locally while the task was
		// queued; nothing to confirm then.
		return
	}
	slog.Error("mark synced failed",
		"component", "sync",
		"entry_id", id,
		"error", err,
	)
}

// pull fetches remote changes since the watermark and merges them without
// clobbering unconfirmed local edits. Local wins unconditionally for any
// entry still marked unsynced: the user can see their own edit, so it is
// never silently discarded in favor of the server copy.
//
// The watermark advances only after the whole cycle applied cleanly, and
// it advances to the fetch start rather than completion, so changes
// landing mid-cycle are re-fetched next time. Re-fetching is harmless:
// the merge upsert is idempotent.
func (s *Service) pull(ctx context.Context, forceFull bool) (*types.SyncStats, error) {
	start := time.Now()
	stats := &types.SyncStats{}

	var params types.ListParams
	if !forceFull {
		watermark, err := s.store.LastSyncedAt(ctx)
		if err != nil {
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("read watermark: %w", err)
		}
		params.UpdatedAfter = watermark
	}

	entries, err := s.remote.ListJournals(ctx, params)
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("fetch remote entries: %w", err)
	}

	unsynced, err := s.store.UnsyncedIDs(ctx)
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("read unsynced set: %w", err)
	}

	merge := entries[:0]
	for _, entry := range entries {
		if _, pending := unsynced[entry.ID]; pending {
			slog.Warn("conflict, keeping local unsynced version",
				"component", "sync",
				"entry_id", entry.ID,
			)
			stats.Conflicts++
			continue
		}
		merge = append(merge, entry)
	}

	if len(merge) > 0 {
		if err := s.store.UpsertRemote(ctx, merge); err != nil {
			// Partial application inside the store is rolled back, but a
			// storage engine failure here must be visible, not swallowed.
			slog.Error("merge upsert failed",
				"component", "sync",
				"count", len(merge),
				"error", err,
			)
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("merge entries: %w", err)
		}
	}

	if err := s.store.SetLastSyncedAt(ctx, start); err != nil {
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("advance watermark: %w", err)
	}

	stats.Pulled = len(merge)
	stats.Duration = time.Since(start)

	if stats.Pulled > 0 || stats.Conflicts > 0 {
		slog.Info("pull completed",
			"component", "sync",
			"pulled", stats.Pulled,
			"conflicts", stats.Conflicts,
		)
	}
	return stats, nil
}
