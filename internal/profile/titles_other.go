//go:build !darwin && !linux && !windows

package profile

import (
	"context"
	"errors"
)

func windowTitles(context.Context) ([]string, error) {
	return nil, errors.New("window title probing is not supported on this platform")
}
