package schema

import (
	"fmt"
	"sort"

	"github.com/hieucao/anki-vibe/internal/fingerprint"
)

const (
	// DefaultDeck is used for notes without a deck in whole-profile mode.
	DefaultDeck = "Default"

	// UnresolvedDeck marks a pulled note whose cards could not be matched
	// to any deck. Sync refuses to create notes in it.
	UnresolvedDeck = "(unresolved)"
)

// Note is one entry of notes.yaml.
type Note struct {
	ID     *int64            `yaml:"id,omitempty"`
	Deck   string            `yaml:"deck" validate:"required"`
	Tags   []string          `yaml:"tags" validate:"dive,required"`
	Fields map[string]string `yaml:"fields" validate:"required,min=1"`
}

// HasID reports whether Anki has assigned the note an id.
func (n *Note) HasID() bool {
	return n.ID != nil
}

// SetID records the id Anki assigned to the note.
func (n *Note) SetID(id int64) {
	n.ID = &id
}

// SetDefaults fills in the deck when the file leaves it out.
func (n *Note) SetDefaults(deck string) {
	if n.Deck == "" {
		n.Deck = deck
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
}

// Validate checks the note can be sent to Anki.
func (n *Note) Validate() error {
	return validateStruct(n)
}

// ValidateNew checks a note that is about to be created. On top of
// Validate it refuses the unresolved deck sentinel.
func (n *Note) ValidateNew() error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.Deck == UnresolvedDeck {
		return fmt.Errorf("%w: deck must not be %q", ErrValidation, UnresolvedDeck)
	}
	return nil
}

// Hash returns the note's content fingerprint.
func (n *Note) Hash() string {
	return fingerprint.Note(n.Deck, n.Tags, n.Fields)
}

// FieldNames returns the field names in sorted order.
func (n *Note) FieldNames() []string {
	names := make([]string, 0, len(n.Fields))
	for name := range n.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String identifies the note in log lines.
func (n *Note) String() string {
	if n.ID != nil {
		return fmt.Sprintf("note %d", *n.ID)
	}
	return "new note"
}
