//go:build windows

package profile

import (
	"context"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procIsWindowVisible      = user32.NewProc("IsWindowVisible")
)

func windowText(hwnd windows.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

// windowTitles enumerates visible top-level windows whose title mentions
// Anki.
func windowTitles(ctx context.Context) ([]string, error) {
	var titles []string
	cb := syscall.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
		if ctx.Err() != nil {
			return 0
		}
		if visible, _, _ := procIsWindowVisible.Call(uintptr(hwnd)); visible == 0 {
			return 1
		}
		if title := windowText(hwnd); strings.Contains(title, "Anki") {
			titles = append(titles, title)
		}
		return 1
	})
	if err := windows.EnumWindows(cb, nil); err != nil && len(titles) == 0 {
		return nil, err
	}
	return titles, ctx.Err()
}
