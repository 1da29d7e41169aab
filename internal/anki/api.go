package anki

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"golang.org/x/mod/semver"
)

// Gateway is the set of AnkiConnect operations the sync and pull engines
// depend on. *Client implements it; tests substitute fakes.
type Gateway interface {
	ModelNames(ctx context.Context) ([]string, error)
	FindNotes(ctx context.Context, query string) ([]int64, error)
	NotesInfo(ctx context.Context, ids []int64) ([]NoteInfo, error)
	CardsInfo(ctx context.Context, ids []int64) ([]CardInfo, error)
	ModelStyling(ctx context.Context, model string) (string, error)
	ModelTemplates(ctx context.Context, model string) (map[string]CardTemplate, error)
	AddNotes(ctx context.Context, notes []NewNote) ([]*int64, error)
	Multi(ctx context.Context, actions []Action) ([]ActionResult, error)
	UpdateModelStyling(ctx context.Context, model, css string) error
	UpdateModelTemplates(ctx context.Context, model string, templates map[string]CardTemplate) error
}

var _ Gateway = (*Client)(nil)

// MinVersion is the oldest AnkiConnect API version supported.
const MinVersion = "v6"

// Version returns the AnkiConnect API version.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	if _, err := c.invoke(ctx, "version", nil, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// CheckVersion verifies the add-on speaks at least MinVersion.
func (c *Client) CheckVersion(ctx context.Context) (int, error) {
	v, err := c.Version(ctx)
	if err != nil {
		return 0, err
	}
	if semver.Compare("v"+strconv.Itoa(v), MinVersion) < 0 {
		return v, fmt.Errorf("%w: got %d, need %s or newer", ErrUnsupportedVersion, v, MinVersion)
	}
	return v, nil
}

// DeckNames lists every deck.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	_, err := c.invoke(ctx, "deckNames", nil, &names)
	return names, err
}

// ModelNames lists every note type.
func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	var names []string
	_, err := c.invoke(ctx, "modelNames", nil, &names)
	return names, err
}

// FindNotes returns the ids of notes matching an Anki search query.
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	_, err := c.invoke(ctx, "findNotes", map[string]any{"query": query}, &ids)
	return ids, err
}

// NotesInfo fetches note details. Ids Anki no longer knows come back as
// empty objects and are dropped.
func (c *Client) NotesInfo(ctx context.Context, ids []int64) ([]NoteInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var infos []NoteInfo
	if _, err := c.invoke(ctx, "notesInfo", map[string]any{"notes": ids}, &infos); err != nil {
		return nil, err
	}
	out := infos[:0]
	for _, info := range infos {
		if info.NoteID != 0 {
			out = append(out, info)
		}
	}
	return out, nil
}

// CardsInfo fetches card details.
func (c *Client) CardsInfo(ctx context.Context, ids []int64) ([]CardInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var infos []CardInfo
	_, err := c.invoke(ctx, "cardsInfo", map[string]any{"cards": ids}, &infos)
	return infos, err
}

// ModelStyling returns a note type's CSS.
func (c *Client) ModelStyling(ctx context.Context, model string) (string, error) {
	var out struct {
		CSS string `json:"css"`
	}
	_, err := c.invoke(ctx, "modelStyling", map[string]any{"modelName": model}, &out)
	return out.CSS, err
}

// ModelTemplates returns a note type's templates keyed by template name.
func (c *Client) ModelTemplates(ctx context.Context, model string) (map[string]CardTemplate, error) {
	var out map[string]CardTemplate
	_, err := c.invoke(ctx, "modelTemplates", map[string]any{"modelName": model}, &out)
	return out, err
}

// AddNotes creates notes and returns one id per input, in order. A nil
// entry means Anki rejected that note. When Anki reports an error but
// still returns a per-note result list, the list is returned and the
// error is only logged so accepted notes are not lost.
func (c *Client) AddNotes(ctx context.Context, notes []NewNote) ([]*int64, error) {
	if len(notes) == 0 {
		return nil, nil
	}
	var ids []*int64
	raw, err := c.invoke(ctx, "addNotes", map[string]any{"notes": notes}, &ids)
	if err != nil {
		if !IsRemote(err) {
			return nil, err
		}
		if jerr := json.Unmarshal(raw, &ids); jerr != nil || len(ids) != len(notes) {
			return nil, err
		}
		c.logger.Warn().Err(err).Msg("some notes were rejected")
	}
	if len(ids) != len(notes) {
		return nil, fmt.Errorf("%w: addNotes returned %d ids for %d notes", ErrProtocol, len(ids), len(notes))
	}
	return ids, nil
}

// UpdateNoteFields replaces a note's field values.
func (c *Client) UpdateNoteFields(ctx context.Context, id int64, fields map[string]string) error {
	a := UpdateNoteFieldsAction(id, fields)
	_, err := c.invoke(ctx, a.Action, a.Params, nil)
	return err
}

// UpdateNoteTags replaces a note's tags.
func (c *Client) UpdateNoteTags(ctx context.Context, id int64, tags []string) error {
	a := UpdateNoteTagsAction(id, tags)
	_, err := c.invoke(ctx, a.Action, a.Params, nil)
	return err
}

// Multi sends several actions in one request. The returned slice has one
// entry per action; per-action failures are reported in ActionResult.Err.
func (c *Client) Multi(ctx context.Context, actions []Action) ([]ActionResult, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	var replies []json.RawMessage
	if _, err := c.invoke(ctx, "multi", map[string]any{"actions": actions}, &replies); err != nil {
		return nil, err
	}
	if len(replies) != len(actions) {
		return nil, fmt.Errorf("%w: multi returned %d results for %d actions", ErrProtocol, len(replies), len(actions))
	}

	results := make([]ActionResult, len(actions))
	for i, raw := range replies {
		result, err := decodeReply(actions[i].Action, raw)
		results[i] = ActionResult{Result: result, Err: err}
	}
	return results, nil
}

// UpdateModelStyling replaces a note type's CSS.
func (c *Client) UpdateModelStyling(ctx context.Context, model, css string) error {
	_, err := c.invoke(ctx, "updateModelStyling", map[string]any{
		"model": map[string]any{"name": model, "css": css},
	}, nil)
	return err
}

// UpdateModelTemplates replaces the front/back format of the named
// templates. Templates not listed are left as they are.
func (c *Client) UpdateModelTemplates(ctx context.Context, model string, templates map[string]CardTemplate) error {
	if len(templates) == 0 {
		return nil
	}
	_, err := c.invoke(ctx, "updateModelTemplates", map[string]any{
		"model": map[string]any{"name": model, "templates": templates},
	}, nil)
	return err
}
