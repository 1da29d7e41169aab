package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hieucao/anki-vibe/internal/pull"
	"github.com/hieucao/anki-vibe/internal/ui"
)

var flagForce bool

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Fetch note types and notes from Anki into local files",
	Long: `Fetch note types and notes from Anki into local files.

In a project, each [[targets]] entry is pulled into its folder using the
target's query. Folders outside the declared targets are never touched.

Without a project, every note type of the profile is pulled into
<data_dir>/<profile>/<note type>/:
  config.yaml      note type name and template file mapping
  notes.yaml       notes with id, deck, tags and fields
  style.css        card styling
  *_front.html     card template fronts
  *_back.html      card template backs
Folders for note types that no longer exist are deleted.

Pull records what it fetched, so a sync right after a pull pushes nothing.`,
	RunE: runPull,
}

func init() {
	pullCmd.Flags().BoolVar(&flagForce, "force", false, "overwrite local files without asking")
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ws, err := resolveWorkspace(ctx, out)
	if err != nil {
		return err
	}

	if ws.project == nil {
		fmt.Fprintf(out, "\n%s This pulls ALL data from %s into %s\n", ui.RenderWarn("⚠"), ws.label(), ws.root)
		fmt.Fprintln(out, "   Existing notes.yaml, styling and template files will be overwritten.")
		if !flagForce {
			if err := confirm("Proceed with pull?"); err != nil {
				return err
			}
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

	engine := pull.New(client, store, ws.repo, logger.Logger, pull.Options{Workers: settings.Pull.Workers})

	fmt.Fprintf(out, "%s Pulling %s...\n", ui.RenderAccent("⬇"), ws.label())
	start := time.Now()

	var result *pull.Result
	if ws.project != nil {
		result, err = engine.Pull(ctx, ws.pullTargets())
	} else {
		result, err = engine.PullProfile(ctx, ws.root)
	}
	if err != nil {
		return err
	}

	for _, c := range result.Collections {
		switch {
		case c.Err != nil:
			fmt.Fprintf(out, "  %s %s: %v\n", ui.RenderFail("✗"), c.Name, c.Err)
		case c.Unresolved > 0:
			fmt.Fprintf(out, "  %s %s: %d notes (%d without a deck)\n", ui.RenderWarn("!"), c.Name, c.Notes, c.Unresolved)
		default:
			fmt.Fprintf(out, "  %s %s: %d notes\n", ui.RenderPass("✓"), c.Name, c.Notes)
		}
	}
	for _, dir := range result.Removed {
		fmt.Fprintf(out, "  %s removed %s\n", ui.RenderMuted("-"), dir)
	}

	failed := result.Failed()
	fmt.Fprintf(out, "\n%s Pull finished in %v: %d collections, %d notes, %d failed\n",
		ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond), len(result.Collections), result.Notes(), failed)
	if len(result.Collections) > 0 && failed == len(result.Collections) {
		return errQuiet
	}
	return nil
}
