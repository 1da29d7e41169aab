package profile

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUndetected means no profile was given and none could be detected.
	ErrUndetected = errors.New("could not detect the active Anki profile")
	// ErrDeclined means the user declined to continue on a mismatch.
	ErrDeclined = errors.New("aborted by user")
)

// Confirm asks the user a yes/no question.
type Confirm func(question string) (bool, error)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Profile  string
	Detected string // detected profile, "" when undetected
	Source   string // "flag", "project" or "detected"
}

// Resolve picks the profile to operate on. An explicit profile wins; it
// is checked against the detected one and a mismatch needs confirmation
// unless assumeYes is set. Otherwise the project's profile is used, and
// failing that the detected one.
func Resolve(ctx context.Context, explicit, project string, d Detector, assumeYes bool, confirm Confirm) (Resolution, error) {
	detected, _ := d.Detect(ctx)

	switch {
	case explicit != "":
		r := Resolution{Profile: explicit, Detected: detected, Source: "flag"}
		if detected == "" || detected == explicit || assumeYes {
			return r, nil
		}
		ok, err := confirm(fmt.Sprintf("You are targeting %q but Anki is running %q. Continue?", explicit, detected))
		if err != nil {
			return r, err
		}
		if !ok {
			return r, ErrDeclined
		}
		return r, nil

	case project != "":
		return Resolution{Profile: project, Detected: detected, Source: "project"}, nil

	case detected != "":
		return Resolution{Profile: detected, Detected: detected, Source: "detected"}, nil
	}
	return Resolution{}, ErrUndetected
}
