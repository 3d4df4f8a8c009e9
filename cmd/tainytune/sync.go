package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tai-cha/tainy-tune/internal/connectivity"
	"github.com/tai-cha/tainy-tune/internal/sync"
	"github.com/tai-cha/tainy-tune/internal/types"
)

var (
	syncFull  bool
	syncWatch bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued mutations and pull remote changes",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync queue state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false,
		"Pull the full remote history instead of changes since the last sync")
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false,
		"Keep running and sync on every offline-to-online transition")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogger(cfg)

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	remote := newRemote(cfg)
	svc := sync.NewService(db, remote)

	if syncWatch {
		watcher := connectivity.NewWatcher(
			remote,
			time.Duration(cfg.Sync.ProbeInterval),
			time.Duration(cfg.Sync.Debounce),
			func(ctx context.Context) {
				if _, err := svc.Sync(ctx); err != nil {
					slog.Error("sync cycle failed", "error", err)
				}
			},
		)
		watcher.Run(ctx)
		return nil
	}

	var stats *types.SyncStats
	if syncFull {
		pushStats, err := svc.Push(ctx)
		if err != nil {
			return err
		}
		pullStats, err := svc.Pull(ctx, true)
		if err != nil {
			return err
		}
		stats = pushStats
		if stats == nil {
			stats = pullStats
		} else if pullStats != nil {
			stats.Pulled = pullStats.Pulled
			stats.Conflicts = pullStats.Conflicts
			stats.Errors += pullStats.Errors
		}
	} else {
		stats, err = svc.Sync(ctx)
		if err != nil {
			return err
		}
	}

	if stats == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Sync already in progress, skipped.")
		return nil
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), stats)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Pushed %d, pulled %d, skipped %d, dropped %d, conflicts %d, errors %d (%s)\n",
		stats.Pushed, stats.Pulled, stats.Skipped, stats.Dropped,
		stats.Conflicts, stats.Errors, stats.Duration.Round(time.Millisecond))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogger(cfg)

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	remote := newRemote(cfg)
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	online := remote.Ping(pingCtx) == nil
	pingCancel()

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"entries":        stats.EntryCount,
			"pending":        stats.PendingCount,
			"queue_depth":    stats.QueueDepth,
			"last_synced_at": stats.LastSyncedAt,
			"online":         online,
		})
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(w, "Entries\t%d\n", stats.EntryCount)
	fmt.Fprintf(w, "Pending upload\t%d\n", stats.PendingCount)
	fmt.Fprintf(w, "Queued tasks\t%d\n", stats.QueueDepth)
	lastSync := "never"
	if stats.LastSyncedAt != nil {
		lastSync = stats.LastSyncedAt.Local().Format(time.RFC3339)
	}
	fmt.Fprintf(w, "Last sync\t%s\n", lastSync)
	state := "offline"
	if online {
		state = "online"
	}
	fmt.Fprintf(w, "Remote\t%s (%s)\n", state, cfg.Remote.BaseURL)
	w.Flush()

	return nil
}
