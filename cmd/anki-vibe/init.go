package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hieucao/anki-vibe/internal/config"
	"github.com/hieucao/anki-vibe/internal/ui"
)

var (
	flagInitName string
	flagInitPath string
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "project",
	Short:   "Create an anki-vibe.toml project file",
	Long: `Create an anki-vibe.toml project file.

The file declares the Anki profile and the targets (note type, deck,
search query and folder) that pull, sync and watch work on. An existing
project file is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()

		path, err := config.WriteProjectTemplate(flagInitPath, flagInitName, flagProfile)
		if errors.Is(err, config.ErrProjectExists) {
			fmt.Fprintf(out, "%s %s already exists\n", ui.RenderWarn("⚠"), path)
			return nil
		}
		if err != nil {
			return err
		}

		logger.Info().Str("path", path).Msg("project created")
		fmt.Fprintf(out, "%s Created %s\n", ui.RenderPass("✓"), path)
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "  1. Edit the [[targets]] entries to match your note types and decks")
		fmt.Fprintln(out, "  2. Run 'anki-vibe pull' to fetch the targets")
		fmt.Fprintln(out, "  3. Edit notes.yaml and run 'anki-vibe sync' (or 'anki-vibe watch')")
		return nil
	},
}

func init() {
	initCmd.Flags().StringVarP(&flagInitName, "name", "n", "My Project", "project name")
	initCmd.Flags().StringVar(&flagInitPath, "path", ".", "folder to create the project in")
	rootCmd.AddCommand(initCmd)
}
