//go:build darwin

package profile

import (
	"context"
	"os/exec"
	"strings"
)

const appleScript = `tell application "System Events" to get name of window 1 of process "Anki"`

func windowTitles(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "osascript", "-e", appleScript).Output()
	if err != nil {
		return nil, err
	}
	return []string{strings.TrimSpace(string(out))}, nil
}
