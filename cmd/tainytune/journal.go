package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tai-cha/tainy-tune/internal/config"
	"github.com/tai-cha/tainy-tune/internal/journal"
	"github.com/tai-cha/tainy-tune/internal/store"
	"github.com/tai-cha/tainy-tune/internal/types"
)

var (
	listSearch string
	listLimit  int
	listStart  string
	listEnd    string
	listLocal  bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Manage journal entries",
	Long:  "Create, list, edit, and delete entries. Mutations land locally and upload on the next sync.",
}

var journalAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Create a new entry",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runJournalAdd,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entries",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalEditCmd = &cobra.Command{
	Use:   "edit <id> <content>",
	Short: "Rewrite an entry's content",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runJournalEdit,
}

var journalDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDelete,
}

func init() {
	journalListCmd.Flags().StringVar(&listSearch, "search", "", "Filter by content substring")
	journalListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum entries to return")
	journalListCmd.Flags().StringVar(&listStart, "start", "", "Earliest creation date (RFC 3339)")
	journalListCmd.Flags().StringVar(&listEnd, "end", "", "Latest creation date (RFC 3339)")
	journalListCmd.Flags().BoolVar(&listLocal, "local", false, "Read the local store only, skip the remote")

	journalCmd.AddCommand(journalAddCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalEditCmd)
	journalCmd.AddCommand(journalDeleteCmd)
}

// resolveJournal opens the store and builds the journal service. The caller
// owns closing the returned store.
func resolveJournal(remoteReads bool) (*journal.Service, *store.SQLiteStore, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	setupLogger(cfg)

	db, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	var lister journal.Lister
	if remoteReads {
		lister = newRemote(cfg)
	}
	return journal.NewService(db, lister), db, cfg, nil
}

func runJournalAdd(cmd *cobra.Command, args []string) error {
	svc, db, _, err := resolveJournal(false)
	if err != nil {
		return err
	}
	defer db.Close()

	entry, err := svc.Create(context.Background(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), entry)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (queued for sync)\n", entry.ID)
	return nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	svc, db, _, err := resolveJournal(!listLocal)
	if err != nil {
		return err
	}
	defer db.Close()

	params := types.ListParams{Search: listSearch, Limit: listLimit}
	for _, f := range []struct {
		raw string
		dst **time.Time
	}{
		{listStart, &params.StartDate},
		{listEnd, &params.EndDate},
	} {
		if f.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, f.raw)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", f.raw, err)
		}
		*f.dst = &t
	}

	entries, err := svc.List(context.Background(), params)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No entries found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tCREATED\tMOOD\tSYNCED\tCONTENT")
	for _, e := range entries {
		mood := "-"
		if e.MoodScore != nil {
			mood = fmt.Sprintf("%d", *e.MoodScore)
		}
		synced := "pending"
		if e.Synced == types.SyncConfirmed {
			synced = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			mood,
			synced,
			truncate(strings.ReplaceAll(e.Content, "\n", " "), 60),
		)
	}
	w.Flush()

	return nil
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	svc, db, _, err := resolveJournal(false)
	if err != nil {
		return err
	}
	defer db.Close()

	entry, err := svc.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), entry)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:      %s\n", entry.ID)
	fmt.Fprintf(out, "Created: %s\n", entry.CreatedAt.Local().Format(time.RFC3339))
	if entry.UpdatedAt != nil {
		fmt.Fprintf(out, "Updated: %s\n", entry.UpdatedAt.Local().Format(time.RFC3339))
	}
	if entry.MoodScore != nil {
		fmt.Fprintf(out, "Mood:    %d/10\n", *entry.MoodScore)
	}
	if len(entry.Tags) > 0 {
		fmt.Fprintf(out, "Tags:    %s\n", strings.Join(entry.Tags, ", "))
	}
	if len(entry.DistortionTags) > 0 {
		fmt.Fprintf(out, "Distortions: %s\n", strings.Join(entry.DistortionTags, ", "))
	}
	if entry.Advice != "" {
		fmt.Fprintf(out, "Advice:  %s\n", entry.Advice)
	}
	fmt.Fprintf(out, "\n%s\n", entry.Content)
	return nil
}

func runJournalEdit(cmd *cobra.Command, args []string) error {
	svc, db, _, err := resolveJournal(false)
	if err != nil {
		return err
	}
	defer db.Close()

	entry, err := svc.Update(context.Background(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), entry)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (queued for sync)\n", entry.ID)
	return nil
}

func runJournalDelete(cmd *cobra.Command, args []string) error {
	svc, db, _, err := resolveJournal(false)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := svc.Delete(context.Background(), args[0]); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]bool{"success": true})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (queued for sync)\n", args[0])
	return nil
}
