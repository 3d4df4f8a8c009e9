package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tai-cha/tainy-tune/internal/types"
)

func TestClient_CreateJournal(t *testing.T) {
	var gotAuth, gotClientID string
	var gotBody types.JournalEntry

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/journal" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotClientID = r.Header.Get("X-Client-ID")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(gotBody)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", 5*time.Second)

	entry := types.JournalEntry{ID: "e1", Content: "hello"}
	created, err := c.CreateJournal(context.Background(), entry)
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotClientID != c.ClientID() {
		t.Errorf("client id header = %q, want %q", gotClientID, c.ClientID())
	}
	if gotBody.ID != "e1" {
		t.Errorf("request body id = %q", gotBody.ID)
	}
	if created.ID != "e1" {
		t.Errorf("response id = %q", created.ID)
	}
}

func TestClient_ListJournals_Query(t *testing.T) {
	var gotQuery map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode([]types.JournalEntry{{ID: "a"}, {ID: "b"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "", 5*time.Second)

	after := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entries, err := c.ListJournals(context.Background(), types.ListParams{
		UpdatedAfter: &after,
		Search:       "focus",
		Limit:        10,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
	if got := gotQuery["updatedAfter"]; len(got) != 1 || got[0] != "2025-06-01T12:00:00Z" {
		t.Errorf("updatedAfter = %v", got)
	}
	if got := gotQuery["search"]; len(got) != 1 || got[0] != "focus" {
		t.Errorf("search = %v", got)
	}
	if got := gotQuery["limit"]; len(got) != 1 || got[0] != "10" {
		t.Errorf("limit = %v", got)
	}
}

func TestClient_APIError_Classification(t *testing.T) {
	tests := []struct {
		status    int
		wantFatal bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusForbidden, true},
		{http.StatusNotFound, true},
		{http.StatusConflict, true},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
		{http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]any{"detail": "nope"})
		}))

		c := New(srv.URL, "", 5*time.Second)
		err := c.DeleteJournal(context.Background(), "e1")
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: expected *APIError, got %T", tt.status, err)
		}
		if apiErr.Status != tt.status {
			t.Errorf("status = %d, want %d", apiErr.Status, tt.status)
		}
		if apiErr.Detail != "nope" {
			t.Errorf("detail = %q, want nope", apiErr.Detail)
		}
		if IsFatal(err) != tt.wantFatal {
			t.Errorf("status %d: IsFatal = %v, want %v", tt.status, IsFatal(err), tt.wantFatal)
		}
	}
}

func TestClient_NetworkErrorIsTransient(t *testing.T) {
	// Server that is already closed: connection refused, no HTTP response.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, "", time.Second)
	err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	if IsFatal(err) {
		t.Errorf("network error must be transient, got fatal: %v", err)
	}
}

func TestClient_UpdateJournal_PathEscaping(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(types.JournalEntry{ID: "e1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", 5*time.Second)
	if _, err := c.UpdateJournal(context.Background(), "e1", types.JournalEntry{ID: "e1"}); err != nil {
		t.Fatal(err)
	}

	if gotPath != "/api/journals/e1" {
		t.Errorf("path = %q", gotPath)
	}
}
