package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tai-cha/tainy-tune/internal/types"
	_ "modernc.org/sqlite"
)

// timeLayout is RFC 3339 with a fixed nine-digit fraction so stored
// timestamps compare correctly as strings in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const metaLastSyncedAt = "last_synced_at"

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the SQLite-backed journal database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A :memory: database exists per connection; the pool must stay at one
	// or each connection sees its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// scanEntry scans a row into a JournalEntry, handling JSON tag columns and
// nullable timestamps.
func scanEntry(scanner interface{ Scan(...any) error }) (*types.JournalEntry, error) {
	var entry types.JournalEntry
	var moodScore sql.NullInt64
	var tagsJSON, distortionsJSON string
	var createdAt string
	var updatedAt sql.NullString
	var synced, analysisFailed int

	err := scanner.Scan(
		&entry.ID,
		&entry.Content,
		&moodScore,
		&tagsJSON,
		&distortionsJSON,
		&entry.Advice,
		&entry.Fact,
		&entry.Emotion,
		&entry.OwnerID,
		&createdAt,
		&updatedAt,
		&synced,
		&analysisFailed,
	)
	if err != nil {
		return nil, err
	}

	if moodScore.Valid {
		v := int(moodScore.Int64)
		entry.MoodScore = &v
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &entry.Tags); err != nil {
			return nil, fmt.Errorf("parse tags JSON: %w", err)
		}
	}
	if distortionsJSON != "" {
		if err := json.Unmarshal([]byte(distortionsJSON), &entry.DistortionTags); err != nil {
			return nil, fmt.Errorf("parse distortion tags JSON: %w", err)
		}
	}
	if t, err := parseTime(createdAt); err == nil {
		entry.CreatedAt = t
	}
	if updatedAt.Valid {
		if t, err := parseTime(updatedAt.String); err == nil {
			entry.UpdatedAt = &t
		}
	}
	entry.Synced = types.SyncState(synced)
	entry.IsAnalysisFailed = analysisFailed != 0

	return &entry, nil
}

const entryColumns = `id, content, mood_score, tags, distortion_tags, advice, fact, emotion,
	       owner_id, created_at, updated_at, synced, is_analysis_failed`

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func entryArgs(entry types.JournalEntry) ([]any, error) {
	tagsJSON, err := marshalTags(entry.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	distortionsJSON, err := marshalTags(entry.DistortionTags)
	if err != nil {
		return nil, fmt.Errorf("marshal distortion tags: %w", err)
	}

	var moodScore any
	if entry.MoodScore != nil {
		moodScore = *entry.MoodScore
	}
	var updatedAt any
	if entry.UpdatedAt != nil {
		updatedAt = formatTime(*entry.UpdatedAt)
	}

	return []any{
		entry.ID,
		entry.Content,
		moodScore,
		tagsJSON,
		distortionsJSON,
		entry.Advice,
		entry.Fact,
		entry.Emotion,
		entry.OwnerID,
		formatTime(entry.CreatedAt),
		updatedAt,
		int(entry.Synced),
		boolToInt(entry.IsAnalysisFailed),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// PutEntry inserts or fully replaces the row for entry.ID.
func (s *SQLiteStore) PutEntry(ctx context.Context, entry types.JournalEntry) error {
	args, err := entryArgs(entry)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO journal_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}

	return nil
}

// GetEntry retrieves a journal entry by ID.
func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*types.JournalEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM journal_entries
		WHERE id = ?
	`, id)

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}

	return entry, nil
}

// DeleteEntry removes the row for the given ID. Deleting a missing row is
// not an error; the delete path must be idempotent across retries.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// ListEntries returns entries ordered by created_at descending, filtered by
// the given params.
func (s *SQLiteStore) ListEntries(ctx context.Context, params types.ListParams) ([]types.JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE 1=1`
	var args []any

	if params.StartDate != nil {
		query += " AND created_at >= ?"
		args = append(args, formatTime(*params.StartDate))
	}
	if params.EndDate != nil {
		query += " AND created_at <= ?"
		args = append(args, formatTime(*params.EndDate))
	}
	if params.UpdatedAfter != nil {
		query += " AND COALESCE(updated_at, created_at) > ?"
		args = append(args, formatTime(*params.UpdatedAfter))
	}
	if params.Search != "" {
		query += " AND content LIKE '%' || ? || '%'"
		args = append(args, params.Search)
	}

	query += " ORDER BY created_at DESC"

	if params.Limit > 0 || params.Offset > 0 {
		limit := params.Limit
		if limit <= 0 {
			limit = -1 // SQLite: no limit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, params.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []types.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}

// UpsertRemote bulk-upserts server entries, stamping each as confirmed
// synced. The batch is applied in a single transaction so reconciliation
// is all-or-nothing from the caller's perspective.
func (s *SQLiteStore) UpsertRemote(ctx context.Context, entries []types.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO journal_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			mood_score = excluded.mood_score,
			tags = excluded.tags,
			distortion_tags = excluded.distortion_tags,
			advice = excluded.advice,
			fact = excluded.fact,
			emotion = excluded.emotion,
			updated_at = excluded.updated_at,
			synced = excluded.synced,
			is_analysis_failed = excluded.is_analysis_failed
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		entry.Synced = types.SyncConfirmed
		args, err := entryArgs(entry)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert entry %s: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// UnsyncedIDs returns the set of entry ids currently marked as locally
// modified and unconfirmed.
func (s *SQLiteStore) UnsyncedIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM journal_entries WHERE synced = 0`)
	if err != nil {
		return nil, fmt.Errorf("query unsynced ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ids[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return ids, nil
}

// MarkSynced flags the entry as confirmed by the server.
func (s *SQLiteStore) MarkSynced(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE journal_entries SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Enqueue appends a mutation to the sync queue and returns its sequence
// number.
func (s *SQLiteStore) Enqueue(ctx context.Context, action types.SyncAction, payload any) (int64, error) {
	if !action.Valid() {
		return 0, fmt.Errorf("invalid sync action %q", action)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_queue (action, payload, created_at)
		VALUES (?, ?, ?)
	`, string(action), string(data), formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	return seq, nil
}

// Queue returns all pending queue items in enqueue order.
func (s *SQLiteStore) Queue(ctx context.Context) ([]types.SyncQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, action, payload, created_at
		FROM sync_queue
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	var items []types.SyncQueueItem
	for rows.Next() {
		var item types.SyncQueueItem
		var action, payload, createdAt string
		if err := rows.Scan(&item.Seq, &action, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		item.Action = types.SyncAction(action)
		item.Payload = json.RawMessage(payload)
		if t, err := parseTime(createdAt); err == nil {
			item.CreatedAt = t
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return items, nil
}

// Dequeue removes a queue item by sequence number.
func (s *SQLiteStore) Dequeue(ctx context.Context, seq int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("dequeue: %w", err)
	}
	return nil
}

// LastSyncedAt returns the pull watermark, or nil if no pull has completed.
func (s *SQLiteStore) LastSyncedAt(ctx context.Context) (*time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, metaLastSyncedAt).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query watermark: %w", err)
	}

	t, err := parseTime(value)
	if err != nil {
		return nil, fmt.Errorf("parse watermark: %w", err)
	}

	return &t, nil
}

// SetLastSyncedAt persists the pull watermark.
func (s *SQLiteStore) SetLastSyncedAt(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaLastSyncedAt, formatTime(t))
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

// Settings returns the system settings row.
func (s *SQLiteStore) Settings(ctx context.Context) (*types.PublicSettings, error) {
	var editing, registration int
	err := s.db.QueryRowContext(ctx, `
		SELECT allow_journal_editing, registration_enabled
		FROM system_settings WHERE id = 1
	`).Scan(&editing, &registration)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}

	return &types.PublicSettings{
		AllowJournalEditing: editing != 0,
		RegistrationEnabled: registration != 0,
	}, nil
}

// SetJournalEditing toggles the global edit-permission flag.
func (s *SQLiteStore) SetJournalEditing(ctx context.Context, allowed bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE system_settings SET allow_journal_editing = ? WHERE id = 1
	`, boolToInt(allowed))
	if err != nil {
		return fmt.Errorf("set journal editing: %w", err)
	}
	return nil
}

// Stats returns aggregate store statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	stats := &types.StoreStats{}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal_entries`).Scan(&stats.EntryCount); err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal_entries WHERE synced = 0`).Scan(&stats.PendingCount); err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&stats.QueueDepth); err != nil {
		return nil, fmt.Errorf("count queue: %w", err)
	}

	watermark, err := s.LastSyncedAt(ctx)
	if err != nil {
		return nil, err
	}
	stats.LastSyncedAt = watermark

	return stats, nil
}
