package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	ankisync "github.com/hieucao/anki-vibe/internal/sync"
	"github.com/hieucao/anki-vibe/internal/ui"
)

var flagDryRun bool

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push local changes to Anki",
	Long: `Push local changes to Anki.

Every note in each collection's notes.yaml is compared with what was last
pushed or pulled:
  no id          created in Anki; the new id is written back to notes.yaml
  changed        fields and tags updated in Anki
  unchanged      skipped

Styling and card templates are pushed when they changed. Use --dry-run to
see what would happen without touching Anki or the state database.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report planned changes without pushing")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
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
		fmt.Fprintf(out, "%s Nothing to sync for %s\n", ui.RenderWarn("⚠"), ws.label())
		return nil
	}

	if !flagDryRun {
		if err := confirm(fmt.Sprintf("Push changes for %s to Anki?", ws.label())); err != nil {
			return err
		}
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
		DryRun:    flagDryRun,
	})

	fmt.Fprintf(out, "%s Syncing %s...\n", ui.RenderAccent("🚀"), ws.label())
	start := time.Now()

	result, err := engine.Sync(ctx, collections)
	if result != nil {
		printSyncResult(out, result)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s %s in %v\n", ui.RenderPass("✓"), result.Summary(), time.Since(start).Round(time.Millisecond))
	if result.AllFailed() {
		return errQuiet
	}
	return nil
}

func printSyncResult(out io.Writer, result *ankisync.Result) {
	for _, c := range result.Collections {
		switch {
		case c.Skipped:
			fmt.Fprintf(out, "  %s %s: skipped (%s)\n", ui.RenderMuted("-"), c.Collection, c.SkipReason)
		case c.Err != nil:
			fmt.Fprintf(out, "  %s %s: %v\n", ui.RenderFail("✗"), c.Collection, c.Err)
		default:
			marker := ui.RenderPass("✓")
			if c.Failed > 0 || c.Rejected > 0 || c.Invalid > 0 {
				marker = ui.RenderWarn("!")
			}
			fmt.Fprintf(out, "  %s %s: %d created, %d updated, %d unchanged", marker, c.Collection, c.Created, c.Updated, c.Unchanged)
			if c.Rejected+c.Invalid+c.Failed > 0 {
				fmt.Fprintf(out, ", %d rejected, %d invalid, %d failed", c.Rejected, c.Invalid, c.Failed)
			}
			if c.StructurePushed {
				fmt.Fprint(out, ", structure pushed")
			}
			fmt.Fprintln(out)
		}
	}
}
