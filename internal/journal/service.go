// Package journal implements the user-facing entry operations. Every
// mutation commits to the local store first and queues a sync task; the
// network is never on the mutation path, so writes succeed offline.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tai-cha/tainy-tune/internal/store"
	"github.com/tai-cha/tainy-tune/internal/types"
)

// Lister is the remote read surface used for remote-first listing. It is
// satisfied by the HTTP client.
type Lister interface {
	ListJournals(ctx context.Context, params types.ListParams) ([]types.JournalEntry, error)
}

// Service coordinates local writes with the sync queue. remote may be nil
// for a purely offline deployment; reads then come from the local store
// only.
type Service struct {
	store  store.Store
	remote Lister
}

// NewService creates a journal service over the local store.
func NewService(s store.Store, remote Lister) *Service {
	return &Service{store: s, remote: remote}
}

// Create stores a new entry with a fresh id and queues its upload. The id
// is generated here, client-side, and identifies the entry end to end; the
// server never assigns a different one.
func (s *Service) Create(ctx context.Context, content string) (*types.JournalEntry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("content must not be empty")
	}

	entry := types.JournalEntry{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Synced:    types.SyncPending,
	}

	if err := s.store.PutEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("store entry: %w", err)
	}
	if _, err := s.store.Enqueue(ctx, types.ActionCreate, entry); err != nil {
		return nil, fmt.Errorf("queue create: %w", err)
	}

	slog.Info("entry created",
		"component", "journal",
		"entry_id", entry.ID,
	)
	return &entry, nil
}

// Update rewrites the entry content locally and queues the edit. The entry
// drops back to pending until the next push confirms it.
func (s *Service) Update(ctx context.Context, id, content string) (*types.JournalEntry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("content must not be empty")
	}

	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry.Content = content
	entry.UpdatedAt = &now
	entry.Synced = types.SyncPending

	if err := s.store.PutEntry(ctx, *entry); err != nil {
		return nil, fmt.Errorf("store entry: %w", err)
	}
	if _, err := s.store.Enqueue(ctx, types.ActionUpdate, *entry); err != nil {
		return nil, fmt.Errorf("queue update: %w", err)
	}

	slog.Info("entry updated",
		"component", "journal",
		"entry_id", id,
	)
	return entry, nil
}

// Delete removes the entry locally and queues the remote delete. Deleting
// an entry that is already gone locally still queues the task, so a delete
// issued on one device for a server-side entry propagates.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if _, err := s.store.Enqueue(ctx, types.ActionDelete, types.JournalEntry{ID: id}); err != nil {
		return fmt.Errorf("queue delete: %w", err)
	}

	slog.Info("entry deleted",
		"component", "journal",
		"entry_id", id,
	)
	return nil
}

// Get reads a single entry from the local store.
func (s *Service) Get(ctx context.Context, id string) (*types.JournalEntry, error) {
	return s.store.GetEntry(ctx, id)
}

// List prefers the remote view so freshly synced entries from other devices
// show up without waiting for a pull, and falls back to the local store
// when the remote is unreachable.
func (s *Service) List(ctx context.Context, params types.ListParams) ([]types.JournalEntry, error) {
	if s.remote != nil {
		entries, err := s.remote.ListJournals(ctx, params)
		if err == nil {
			return entries, nil
		}
		slog.Warn("remote list failed, serving local entries",
			"component", "journal",
			"error", err,
		)
	}
	return s.store.ListEntries(ctx, params)
}
