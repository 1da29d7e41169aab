package main

import (
	"fmt"

	"github.com/spf13/cobra"

	ankisync "github.com/hieucao/anki-vibe/internal/sync"
	"github.com/hieucao/anki-vibe/internal/ui"
	"github.com/hieucao/anki-vibe/internal/watch"
)

var flagDebounce = watch.DefaultDebounce

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Sync automatically when collection files change",
	Long: `Sync automatically when collection files change.

Runs one full sync, then watches every collection folder. When a
notes.yaml, config.yaml, style.css or template file is saved, that
collection is synced once the folder has been quiet for --debounce.

Press Ctrl+C to stop.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", watch.DefaultDebounce, "quiet period before syncing a changed collection")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ws, err := resolveWorkspace(ctx, out)
	if err != nil {
		return err
	}
	collections, err := ws.collections()
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		return fmt.Errorf("nothing to watch for %s; run 'anki-vibe pull' first", ws.label())
	}

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	store, err := ws.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := ankisync.New(client, store, ws.repo, logger.Logger, ankisync.Options{
		ChunkSize: settings.Sync.ChunkSize,
	})

	w, err := watch.New(engine, collections, logger.Logger, watch.Config{
		Debounce: flagDebounce,
		OnSync: func(r ankisync.CollectionResult) {
			printSyncResult(out, &ankisync.Result{Collections: []ankisync.CollectionResult{r}})
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Watching %d collections for %s (Ctrl+C to stop)\n", ui.RenderAccent("👀"), len(collections), ws.label())
	if err := w.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s Stopped watching\n", ui.RenderMuted("■"))
	return nil
}
