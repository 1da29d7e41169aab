package anki

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection means AnkiConnect could not be reached: Anki is not
	// running, the add-on is missing, the request timed out, or the
	// circuit breaker is open after repeated failures.
	ErrConnection = errors.New("cannot reach AnkiConnect")

	// ErrProtocol means AnkiConnect answered with something that is not a
	// valid v6 reply.
	ErrProtocol = errors.New("unexpected AnkiConnect reply")

	// ErrUnsupportedVersion means the add-on speaks an older API.
	ErrUnsupportedVersion = errors.New("unsupported AnkiConnect version")
)

// RemoteError is a logical rejection: AnkiConnect received the request
// and returned a non-null error.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("AnkiConnect %s: %s", e.Action, e.Message)
}

// IsConnection reports whether err is a transport failure.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsRemote reports whether err is a logical rejection by Anki.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
