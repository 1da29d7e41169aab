package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/hieucao/anki-vibe/internal/anki"
	"github.com/hieucao/anki-vibe/internal/config"
	"github.com/hieucao/anki-vibe/internal/profile"
	"github.com/hieucao/anki-vibe/internal/state"
	"github.com/hieucao/anki-vibe/internal/ui"
)

const infoDeckPreview = 5

var flagChangedSince string

var infoCmd = &cobra.Command{
	Use:     "info",
	GroupID: "setup",
	Short:   "Show connection, profile, project and state details",
	Long: `Show connection, profile, project and state details.

Checks that AnkiConnect answers, lists a few decks, reports the profile
currently open in Anki and summarizes the local state database.

Use --changed-since to count fingerprints recorded after a point in time.
Natural language is accepted:
  anki-vibe info --changed-since "2 hours ago"
  anki-vibe info --changed-since yesterday
  anki-vibe info --changed-since 2026-01-31`,
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().StringVar(&flagChangedSince, "changed-since", "", "count state entries written after this time")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var since time.Time
	if flagChangedSince != "" {
		t, err := parseWhen(flagChangedSince, time.Now())
		if err != nil {
			return err
		}
		since = t
	}

	fmt.Fprintln(out, ui.RenderAccent("AnkiConnect"))
	client := newClient()
	ui.KeyValue(out, "URL", client.URL())
	v, err := client.CheckVersion(ctx)
	switch {
	case errors.Is(err, anki.ErrUnsupportedVersion):
		ui.KeyValue(out, "Status", ui.RenderWarn("connected"))
		ui.KeyValue(out, "Version", fmt.Sprintf("%d (need %s or newer)", v, anki.MinVersion))
	case err != nil:
		ui.KeyValue(out, "Status", ui.RenderFail("unreachable"))
		logger.Debug().Err(err).Msg("version check failed")
	default:
		ui.KeyValue(out, "Status", ui.RenderPass("connected"))
		ui.KeyValue(out, "Version", v)
		if decks, err := client.DeckNames(ctx); err == nil {
			ui.KeyValue(out, "Decks", len(decks))
			preview := decks
			if len(preview) > infoDeckPreview {
				preview = preview[:infoDeckPreview]
			}
			ui.List(out, preview)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.RenderAccent("Profile"))
	active, detected := profile.NewDetector(logger.Logger).Detect(ctx)
	if detected {
		ui.KeyValue(out, "Active", active)
	} else {
		ui.KeyValue(out, "Active", ui.RenderMuted("not detected"))
	}
	ui.KeyValue(out, "Data dir", settings.DataDir)

	statePath := ""
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.RenderAccent("Project"))
	path, err := config.FindProject(".")
	switch {
	case err == nil:
		p, err := config.LoadProject(path)
		if err != nil {
			return err
		}
		ui.KeyValue(out, "Name", p.Project.Name)
		ui.KeyValue(out, "File", p.Path())
		if p.Project.AnkiProfile != "" {
			ui.KeyValue(out, "Profile", p.Project.AnkiProfile)
		}
		ui.KeyValue(out, "Targets", len(p.Targets))
		for _, t := range p.Targets {
			fmt.Fprintf(out, "    %s %s → %s\n", ui.RenderMuted("-"), t.Name, p.TargetDir(t))
		}
		statePath = p.StatePath()
	case errors.Is(err, config.ErrProjectNotFound):
		ui.KeyValue(out, "Name", ui.RenderMuted("none (whole-profile mode)"))
		name := flagProfile
		if name == "" {
			name = active
		}
		if name != "" {
			if root, err := config.ProfileRoot(settings.DataDir, name); err == nil {
				statePath = config.ProfileStatePath(root)
			}
		}
	default:
		return err
	}

	if statePath == "" {
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.RenderAccent("State"))
	ui.KeyValue(out, "Database", statePath)
	if _, err := os.Stat(statePath); err != nil {
		ui.KeyValue(out, "Entries", ui.RenderMuted("none yet"))
		return nil
	}
	return printStateStats(ctx, out, statePath, since)
}

func printStateStats(ctx context.Context, out io.Writer, path string, since time.Time) error {
	store, err := state.Open(ctx, path, logger.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.StatsContext(ctx)
	if err != nil {
		return err
	}
	ui.KeyValue(out, "Notes", stats.Notes)
	ui.KeyValue(out, "Note types", stats.Models)

	if since.IsZero() {
		return nil
	}
	changed, err := store.ChangedSinceContext(ctx, since)
	if err != nil {
		return err
	}
	ui.KeyValue(out, "Changed since", since.Format(time.DateTime))
	ui.KeyValue(out, "  notes", changed.Notes)
	ui.KeyValue(out, "  note types", changed.Models)
	return nil
}

// parseWhen accepts RFC 3339, plain dates and natural language relative
// to base.
func parseWhen(text string, base time.Time) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, text, base.Location()); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand time %q", text)
	}
	return r.Time, nil
}
