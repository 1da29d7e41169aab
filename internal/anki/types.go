package anki

import "github.com/goccy/go-json"

// Action is one request inside a multi call.
type Action struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

// NewAction builds an action at the API version this client speaks.
func NewAction(action string, params any) Action {
	return Action{Action: action, Version: APIVersion, Params: params}
}

// UpdateNoteFieldsAction replaces a note's field values.
func UpdateNoteFieldsAction(id int64, fields map[string]string) Action {
	return NewAction("updateNoteFields", map[string]any{
		"note": map[string]any{"id": id, "fields": fields},
	})
}

// UpdateNoteTagsAction replaces a note's full tag set.
func UpdateNoteTagsAction(id int64, tags []string) Action {
	if tags == nil {
		tags = []string{}
	}
	return NewAction("updateNoteTags", map[string]any{
		"note": id,
		"tags": tags,
	})
}

// ActionResult is one element of a multi reply.
type ActionResult struct {
	Result json.RawMessage
	Err    error
}

// NewNote is the payload of addNotes.
type NewNote struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
}

// FieldValue is a note field as notesInfo reports it.
type FieldValue struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NoteInfo is one element of a notesInfo reply.
type NoteInfo struct {
	NoteID    int64                 `json:"noteId"`
	ModelName string                `json:"modelName"`
	Tags      []string              `json:"tags"`
	Fields    map[string]FieldValue `json:"fields"`
	Cards     []int64               `json:"cards"`
}

// FieldMap flattens the field values.
func (n *NoteInfo) FieldMap() map[string]string {
	out := make(map[string]string, len(n.Fields))
	for name, f := range n.Fields {
		out[name] = f.Value
	}
	return out
}

// CardInfo is the part of a cardsInfo element this tool uses.
type CardInfo struct {
	CardID   int64  `json:"cardId"`
	NoteID   int64  `json:"note"`
	DeckName string `json:"deckName"`
}

// CardTemplate is a model template's front and back format.
type CardTemplate struct {
	Front string `json:"Front"`
	Back  string `json:"Back"`
}
