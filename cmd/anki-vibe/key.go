package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hieucao/anki-vibe/internal/secret"
	"github.com/hieucao/anki-vibe/internal/ui"
)

var keyCmd = &cobra.Command{
	Use:     "key",
	GroupID: "setup",
	Short:   "Manage the AnkiConnect API key in the system keyring",
	Long: `Manage the AnkiConnect API key in the system keyring.

Only needed when AnkiConnect is configured with an apiKey. A key set in
the settings file or ANKIVIBE_ANKI_CONNECT_API_KEY takes precedence over
the keyring.`,
}

var keySetCmd = &cobra.Command{
	Use:   "set [KEY]",
	Short: "Store the API key",
	Long: `Store the API key.

Without an argument the key is read from the terminal without echo, or
from standard input when it is not a terminal:
  echo "$KEY" | anki-vibe key set`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		} else {
			k, err := readKey(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			key = k
		}

		store, err := secret.Open()
		if err != nil {
			return err
		}
		if err := store.SetAPIKey(key); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s API key stored in keyring %q\n", ui.RenderPass("✓"), secret.ServiceName)
		return nil
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := secret.Open()
		if err != nil {
			return err
		}
		if err := store.ClearAPIKey(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s API key removed\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd, keyClearCmd)
	rootCmd.AddCommand(keyCmd)
}

// readKey prompts without echo on a terminal and reads one line otherwise.
func readKey(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
