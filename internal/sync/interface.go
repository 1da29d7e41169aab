package sync

import (
	"context"

	"github.com/hieucao/anki-vibe/internal/anki"
)

// Remote is the part of AnkiConnect the engine writes to.
type Remote interface {
	AddNotes(ctx context.Context, notes []anki.NewNote) ([]*int64, error)
	Multi(ctx context.Context, actions []anki.Action) ([]anki.ActionResult, error)
	UpdateModelStyling(ctx context.Context, model, css string) error
	UpdateModelTemplates(ctx context.Context, model string, templates map[string]anki.CardTemplate) error
}

// HashStore is the fingerprint store the engine reads and updates.
type HashStore interface {
	NoteHashContext(ctx context.Context, id int64) (string, bool, error)
	SetNoteHashContext(ctx context.Context, id int64, hash string) error
	ModelHashContext(ctx context.Context, name string) (string, bool, error)
	SetModelHashContext(ctx context.Context, name, hash string) error
}

// Collection is one folder to sync.
type Collection struct {
	// Name identifies the collection in logs and results.
	Name string
	// Dir is the collection folder.
	Dir string
	// Model overrides the model named in config.yaml. Project targets set
	// it; whole-profile folders leave it empty.
	Model string
	// DefaultDeck is used for notes without a deck.
	DefaultDeck string
}
