package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tai-cha/tainy-tune/internal/analysis"
	"github.com/tai-cha/tainy-tune/internal/store"
	"github.com/tai-cha/tainy-tune/internal/types"
	"github.com/tai-cha/tainy-tune/internal/validation"
)

const maxContentLength = 20000

// Handler implements the API handlers
type Handler struct {
	store    store.Store
	analyzer analysis.Analyzer
	apiKey   string
	version  string
}

// NewHandler creates a new Handler with store.Store interface. analyzer may
// be nil; entries are then stored without annotations.
func NewHandler(s store.Store, a analysis.Analyzer, apiKey, version string) *Handler {
	return &Handler{
		store:    s,
		analyzer: a,
		apiKey:   apiKey,
		version:  version,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		EntryCount: stats.EntryCount,
	})
}

// PublicSettings handles GET /api/settings/public
func (h *Handler) PublicSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Settings(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AllowJournalEditing *bool `json:"allowJournalEditing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if req.AllowJournalEditing == nil {
		WriteProblem(w, r, http.StatusBadRequest, "allowJournalEditing is required")
		return
	}

	if err := h.store.SetJournalEditing(r.Context(), *req.AllowJournalEditing); err != nil {
		MapStoreError(w, r, err)
		return
	}

	settings, err := h.store.Settings(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ListJournals handles GET /api/journals
func (h *Handler) ListJournals(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.store.ListEntries(r.Context(), params)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// CreateJournal handles POST /api/journal. The client supplies the entry id;
// replaying a known id is a no-op that returns the stored entry, so a create
// whose response was lost can be retried safely.
func (h *Handler) CreateJournal(w http.ResponseWriter, r *http.Request) {
	var entry types.JournalEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateUUID("id", entry.ID))
	c.Add(validation.ValidateRequired("content", entry.Content))
	c.Add(validation.ValidateUTF8("content", entry.Content))
	c.Add(validation.ValidateMaxLength("content", entry.Content, maxContentLength))
	if entry.MoodScore != nil {
		c.Add(validation.ValidateMoodScore("moodScore", *entry.MoodScore))
	}
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	owner := clientID(r)

	existing, err := h.store.GetEntry(r.Context(), entry.ID)
	switch {
	case err == nil:
		if existing.OwnerID != owner {
			WriteProblem(w, r, http.StatusConflict, "Entry id already exists with a different owner")
			return
		}
		writeJSON(w, http.StatusOK, existing)
		return
	case !errors.Is(err, store.ErrNotFound):
		MapStoreError(w, r, err)
		return
	}

	h.annotate(r, &entry)

	entry.OwnerID = owner
	entry.Synced = types.SyncConfirmed
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := h.store.PutEntry(r.Context(), entry); err != nil {
		slog.Error("create failed", "error", err, "entry_id", entry.ID)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// annotate runs the entry through analysis. A failure applies the neutral
// fallback and flags the entry for later re-analysis instead of failing the
// create.
func (h *Handler) annotate(r *http.Request, entry *types.JournalEntry) {
	if h.analyzer == nil {
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), entry.Content)
	if err != nil {
		slog.Warn("analysis failed, applying fallback",
			"component", "api",
			"entry_id", entry.ID,
			"error", err,
		)
		result = analysis.Fallback()
		entry.IsAnalysisFailed = true
	}

	// A mood the user set themselves wins over the model's estimate.
	if entry.MoodScore == nil {
		mood := result.MoodScore
		entry.MoodScore = &mood
	}
	entry.Tags = result.Tags
	entry.DistortionTags = result.DistortionTags
	entry.Advice = result.Advice
	entry.Fact = result.Fact
	entry.Emotion = result.Emotion
}

// UpdateJournal handles PUT /api/journals/{id}. When editing is disabled an
// identical payload is treated as an idempotent retry and answered with the
// stored entry; a differing payload is rejected.
func (h *Handler) UpdateJournal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req types.JournalEntry
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("content", req.Content))
	c.Add(validation.ValidateUTF8("content", req.Content))
	c.Add(validation.ValidateMaxLength("content", req.Content, maxContentLength))
	if req.MoodScore != nil {
		c.Add(validation.ValidateMoodScore("moodScore", *req.MoodScore))
	}
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	existing, err := h.store.GetEntry(r.Context(), id)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	// An entry owned by another client is reported as missing rather than
	// confirming its existence.
	if existing.OwnerID != clientID(r) {
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
		return
	}

	settings, err := h.store.Settings(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	if !settings.AllowJournalEditing {
		if existing.Content != req.Content || !moodEqual(existing.MoodScore, req.MoodScore) {
			WriteProblem(w, r, http.StatusForbidden, "Journal editing is disabled by administrator")
			return
		}
		writeJSON(w, http.StatusOK, existing)
		return
	}

	now := time.Now().UTC()
	existing.Content = req.Content
	existing.MoodScore = req.MoodScore
	if req.Tags != nil {
		existing.Tags = req.Tags
	}
	existing.IsAnalysisFailed = false
	existing.UpdatedAt = &now

	if err := h.store.PutEntry(r.Context(), *existing); err != nil {
		slog.Error("update failed", "error", err, "entry_id", id)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// DeleteJournal handles DELETE /api/journals/{id}. Deleting an unknown id
// succeeds, so a retried delete is indistinguishable from the first.
func (h *Handler) DeleteJournal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteEntry(r.Context(), id); err != nil {
		slog.Error("delete failed", "error", err, "entry_id", id)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.DeleteResponse{Success: true})
}

func moodEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func parseListParams(r *http.Request) (types.ListParams, error) {
	var params types.ListParams
	query := r.URL.Query()

	for _, f := range []struct {
		name string
		dst  **time.Time
	}{
		{"updatedAfter", &params.UpdatedAfter},
		{"startDate", &params.StartDate},
		{"endDate", &params.EndDate},
	} {
		raw := query.Get(f.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return params, fmt.Errorf("%s must be an RFC 3339 timestamp", f.name)
		}
		*f.dst = &t
	}

	params.Search = query.Get("search")

	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return params, fmt.Errorf("limit must be a non-negative integer")
		}
		params.Limit = n
	}
	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return params, fmt.Errorf("offset must be a non-negative integer")
		}
		params.Offset = n
	}

	return params, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
