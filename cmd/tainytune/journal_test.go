package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tai-cha/tainy-tune/internal/types"
)

// writeTestConfig creates an isolated config with a throwaway database.
func writeTestConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tainytune.yaml")
	content := fmt.Sprintf(`database:
  path: %s
remote:
  base_url: http://127.0.0.1:1
  timeout: 1s
log:
  level: error
`, filepath.Join(dir, "journal.db"))

	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

// executeCmd runs a CLI invocation with captured output.
// Package-level flag variables are reset so stale values from previous
// tests do not leak.
func executeCmd(t *testing.T, cfgPath string, args ...string) (stdout string, err error) {
	t.Helper()

	configPath = ""
	jsonOutput = false
	listSearch = ""
	listLimit = 0
	listStart = ""
	listEnd = ""
	listLocal = false
	syncFull = false
	syncWatch = false

	fullArgs := append([]string{}, args...)
	fullArgs = append(fullArgs, "--config", cfgPath)

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(fullArgs)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), err
}

func TestJournalAddAndList(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := executeCmd(t, cfg, "journal", "add", "first", "entry", "--json")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	var created types.JournalEntry
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("add output not JSON: %v\n%s", err, out)
	}
	if created.Content != "first entry" {
		t.Errorf("content = %q", created.Content)
	}

	out, err = executeCmd(t, cfg, "journal", "list", "--local", "--json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var entries []types.JournalEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("list output not JSON: %v\n%s", err, out)
	}
	if len(entries) != 1 || entries[0].ID != created.ID {
		t.Errorf("entries = %+v", entries)
	}
}

func TestJournalEditAndShow(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := executeCmd(t, cfg, "journal", "add", "draft", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var created types.JournalEntry
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatal(err)
	}

	if _, err := executeCmd(t, cfg, "journal", "edit", created.ID, "polished"); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	out, err = executeCmd(t, cfg, "journal", "show", created.ID, "--json")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	var shown types.JournalEntry
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatal(err)
	}
	if shown.Content != "polished" {
		t.Errorf("content = %q", shown.Content)
	}
	if shown.UpdatedAt == nil {
		t.Error("edit should stamp updatedAt")
	}
}

func TestJournalDelete(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := executeCmd(t, cfg, "journal", "add", "ephemeral", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var created types.JournalEntry
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatal(err)
	}

	if _, err := executeCmd(t, cfg, "journal", "delete", created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := executeCmd(t, cfg, "journal", "show", created.ID); err == nil {
		t.Error("show after delete should fail")
	}
}

func TestStatusReportsQueue(t *testing.T) {
	cfg := writeTestConfig(t)

	if _, err := executeCmd(t, cfg, "journal", "add", "queued"); err != nil {
		t.Fatal(err)
	}

	out, err := executeCmd(t, cfg, "status", "--json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}

	var status struct {
		Entries    int64 `json:"entries"`
		Pending    int64 `json:"pending"`
		QueueDepth int64 `json:"queue_depth"`
		Online     bool  `json:"online"`
	}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("status output not JSON: %v\n%s", err, out)
	}
	if status.Entries != 1 || status.Pending != 1 || status.QueueDepth != 1 {
		t.Errorf("status = %+v, want one pending entry and one queued task", status)
	}
	if status.Online {
		t.Error("remote at a closed port should read offline")
	}
}

func TestJournalListTable(t *testing.T) {
	cfg := writeTestConfig(t)

	if _, err := executeCmd(t, cfg, "journal", "add", "table", "entry"); err != nil {
		t.Fatal(err)
	}

	out, err := executeCmd(t, cfg, "journal", "list", "--local")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "CONTENT") || !strings.Contains(out, "table entry") {
		t.Errorf("table output missing expected columns:\n%s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("unsynced entry should show as pending:\n%s", out)
	}
}
