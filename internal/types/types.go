package types

import (
	"encoding/json"
	"time"
)

// SyncState tracks whether a local entry has been confirmed by the server.
type SyncState int

const (
	// SyncPending marks an entry that was modified locally and not yet
	// confirmed by the server.
	SyncPending SyncState = 0
	// SyncConfirmed marks an entry whose current state the server has
	// acknowledged.
	SyncConfirmed SyncState = 1
)

// SyncAction identifies the kind of mutation held in the sync queue.
type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// Valid reports whether the action is one of the known queue actions.
func (a SyncAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// JournalEntry is the unit of synchronization. The ID is a client-generated
// UUID used as the durable primary key on both sides, so the same value
// identifies the entry locally and remotely from the moment of creation.
type JournalEntry struct {
	ID               string     `json:"id"`
	Content          string     `json:"content"`
	MoodScore        *int       `json:"moodScore"`
	Tags             []string   `json:"tags"`
	DistortionTags   []string   `json:"distortionTags"`
	Advice           string     `json:"advice,omitempty"`
	Fact             string     `json:"fact,omitempty"`
	Emotion          string     `json:"emotion,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        *time.Time `json:"updatedAt"`
	IsAnalysisFailed bool       `json:"isAnalysisFailed,omitempty"`

	// Synced is local-only bookkeeping and never crosses the wire.
	Synced SyncState `json:"-"`

	// OwnerID identifies the principal that created the entry. Populated
	// server-side from the client instance header; never stored locally.
	OwnerID string `json:"-"`
}

// MarshalJSON ensures nil slices in JournalEntry marshal as [] not null.
func (e JournalEntry) MarshalJSON() ([]byte, error) {
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if e.DistortionTags == nil {
		e.DistortionTags = []string{}
	}
	type Alias JournalEntry
	return json.Marshal(Alias(e))
}

// SyncQueueItem is a pending mutation awaiting transmission. Items are
// processed oldest-first by Seq and are deleted, never mutated in place.
type SyncQueueItem struct {
	Seq       int64           `json:"seq"`
	Action    SyncAction      `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// PublicSettings mirrors GET /api/settings/public.
type PublicSettings struct {
	AllowJournalEditing bool `json:"allowJournalEditing"`
	RegistrationEnabled bool `json:"registrationEnabled"`
}

// ListParams filters entry listings, both against the remote service and
// the local store fallback.
type ListParams struct {
	StartDate    *time.Time
	EndDate      *time.Time
	UpdatedAfter *time.Time
	Search       string
	Limit        int
	Offset       int
}

// SyncStats summarizes one push or pull cycle.
type SyncStats struct {
	Pushed    int           `json:"pushed"`
	Pulled    int           `json:"pulled"`
	Dropped   int           `json:"dropped"`
	Skipped   int           `json:"skipped"`
	Conflicts int           `json:"conflicts"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// AnalysisResult holds the AI-derived fields attached to an entry.
type AnalysisResult struct {
	MoodScore      int      `json:"mood_score"`
	Tags           []string `json:"tags"`
	DistortionTags []string `json:"distortion_tags"`
	Advice         string   `json:"advice"`
	Fact           string   `json:"fact"`
	Emotion        string   `json:"emotion"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	EntryCount int64  `json:"entry_count"`
}

// DeleteResponse is the success marker returned by DELETE /api/journals/{id}.
type DeleteResponse struct {
	Success bool `json:"success"`
}

// StoreStats holds aggregate local store statistics.
type StoreStats struct {
	EntryCount   int64      `json:"entry_count"`
	PendingCount int64      `json:"pending_count"`
	QueueDepth   int64      `json:"queue_depth"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}
