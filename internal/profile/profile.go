// Package profile detects the Anki profile that is currently open by
// reading the title of the Anki main window ("<profile> - Anki").
//
// Probing is OS specific and best effort: any failure means "not
// detected", never an error the caller has to handle.
package profile

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// probeTimeout bounds a single window-title probe.
const probeTimeout = 3 * time.Second

// Detector reports the active profile.
type Detector interface {
	// Detect returns the profile name and true, or "" and false when no
	// profile window could be found.
	Detect(ctx context.Context) (string, bool)
}

// titleFunc returns candidate window titles.
type titleFunc func(ctx context.Context) ([]string, error)

// WindowDetector reads window titles through an OS probe.
type WindowDetector struct {
	titles titleFunc
	logger zerolog.Logger
}

// NewDetector returns the detector for the running OS.
func NewDetector(logger zerolog.Logger) *WindowDetector {
	return &WindowDetector{
		titles: windowTitles,
		logger: logger.With().Str("component", "profile").Logger(),
	}
}

// Detect implements Detector.
func (d *WindowDetector) Detect(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	titles, err := d.titles(ctx)
	if err != nil {
		d.logger.Debug().Err(err).Msg("window title probe failed")
		return "", false
	}
	for _, title := range titles {
		if name, ok := ParseTitle(title); ok {
			d.logger.Debug().Str("profile", name).Msg("detected active profile")
			return name, true
		}
	}
	d.logger.Debug().Strs("titles", titles).Msg("no profile window found")
	return "", false
}

var titlePattern = regexp.MustCompile(`^(.*?) - Anki$`)

// ParseTitle extracts the profile from an Anki main window title. The
// bare "Anki" title of the profile chooser yields no profile.
func ParseTitle(title string) (string, bool) {
	title = strings.TrimSpace(title)
	if title == "Anki" {
		return "", false
	}
	m := titlePattern.FindStringSubmatch(title)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// Static is a Detector with a fixed answer.
type Static string

// Detect implements Detector.
func (s Static) Detect(context.Context) (string, bool) {
	return string(s), s != ""
}
