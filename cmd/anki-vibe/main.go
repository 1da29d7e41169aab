// Command anki-vibe keeps Anki note collections in plain files.
//
// YAML files under a profile data folder (or the folders of an
// anki-vibe.toml project) are the source of truth. `pull` copies Anki's
// current state into them, `sync` pushes local edits back through
// AnkiConnect, and `watch` syncs on every save.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hieucao/anki-vibe/internal/config"
	"github.com/hieucao/anki-vibe/internal/logging"
	"github.com/hieucao/anki-vibe/internal/profile"
	"github.com/hieucao/anki-vibe/internal/ui"
)

// Version is set at build time.
var Version = "dev"

var (
	flagProfile string
	flagYes     bool
	flagVerbose bool
	flagConfig  string
	flagNoColor bool
	flagURL     string
	flagDataDir string

	settings *config.Settings
	logger   *logging.Logger
	runID    string
)

var rootCmd = &cobra.Command{
	Use:   "anki-vibe",
	Short: "Manage Anki decks with local files as the source of truth",
	Long: `anki-vibe keeps Anki notes, styling and card templates in plain files.

Local YAML is the source of truth:
  pull   copy note types and notes from Anki into local folders
  sync   push local creates and edits to Anki (only what changed)
  watch  sync automatically whenever a collection file is saved

Commands work on an anki-vibe.toml project when one is found in the
current directory or a parent, and on <data_dir>/<profile> otherwise.
Anki must be running with the AnkiConnect add-on installed.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle: setup refers to rootCmd.
	rootCmd.PersistentPreRunE = setup

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "project", Title: "Project Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagProfile, "profile", "p", "", "Anki profile name (default: project setting or detected)")
	pf.BoolVarP(&flagYes, "yes", "y", false, "skip confirmations")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "show debug logs")
	pf.StringVar(&flagConfig, "config", "", "settings file (default: <user config dir>/anki-vibe/config.yaml)")
	pf.BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	pf.StringVar(&flagURL, "anki-url", "", "AnkiConnect URL (overrides settings)")
	pf.StringVar(&flagDataDir, "data-dir", "", "root folder for profile data (overrides settings)")
}

// setup loads settings and builds the logger before any command runs.
func setup(cmd *cobra.Command, _ []string) error {
	if flagNoColor || os.Getenv("NO_COLOR") != "" {
		ui.DisableColor()
	}

	v := config.NewViper(flagConfig)
	pf := rootCmd.PersistentFlags()
	if err := v.BindPFlag(config.KeyURL, pf.Lookup("anki-url")); err != nil {
		return err
	}
	if err := v.BindPFlag(config.KeyDataDir, pf.Lookup("data-dir")); err != nil {
		return err
	}

	s, err := config.Load(v)
	if err != nil {
		return err
	}
	settings = s

	level := s.LogLevel
	if flagVerbose {
		level = "debug"
	}
	runID = uuid.NewString()
	logger = logging.New(logging.Config{Level: level, Dir: s.LogDir, NoColor: !ui.ColorEnabled()})
	logger.Logger = logger.With().Str("run", runID).Logger()
	logger.Debug().Str("command", cmd.CommandPath()).Str("settings", s.File).Msg("starting")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitCode reports err and maps it to the process exit status. A declined
// confirmation is not a failure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if logger != nil {
		defer logger.Close()
	}
	if errors.Is(err, profile.ErrDeclined) {
		fmt.Fprintln(os.Stderr, ui.RenderWarn("Aborted."))
		return 0
	}
	if !errors.Is(err, errQuiet) {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
	}
	if logger != nil {
		logger.Error().Err(err).Msg("command failed")
	}
	return 1
}
