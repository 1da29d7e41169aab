// Package ui renders terminal output and asks for confirmation.
package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
)

// ErrNotInteractive is returned by Confirm when stdin is not a terminal.
var ErrNotInteractive = errors.New("confirmation needed but stdin is not a terminal (use --yes)")

// DisableColor turns styling off, e.g. for --no-color or NO_COLOR.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ColorEnabled reports whether styled output is on.
func ColorEnabled() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}

// RenderPass styles a success marker or message.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn styles a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail styles a failure.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderAccent styles a heading or progress marker.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderMuted styles secondary detail.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// KeyValue prints an aligned "label: value" line.
func KeyValue(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %s %v\n", labelStyle.Render(fmt.Sprintf("%-14s", label+":")), value)
}

// List prints an indented bullet list.
func List(w io.Writer, items []string) {
	for _, item := range items {
		fmt.Fprintf(w, "    - %s\n", item)
	}
}

// Rule prints a muted horizontal rule of width n.
func Rule(w io.Writer, n int) {
	fmt.Fprintln(w, RenderMuted(strings.Repeat("─", n)))
}

// IsInteractive reports whether stdin and stdout are terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Confirm asks a yes/no question. It fails with ErrNotInteractive when
// there is no terminal to ask on. Cancelling the prompt answers no.
func Confirm(question string) (bool, error) {
	if !IsInteractive() {
		return false, ErrNotInteractive
	}
	var ok bool
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return ok, nil
}
