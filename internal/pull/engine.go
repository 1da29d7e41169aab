// Package pull copies note types and notes from Anki into collection
// folders and seeds the state store, so that syncing right after a pull
// finds nothing to push.
//
// Collections are fetched in parallel by a bounded pool of workers. A
// failure fetching one collection is logged and recorded; the others
// carry on. State store failures stop the run.
package pull

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hieucao/anki-vibe/internal/anki"
	"github.com/hieucao/anki-vibe/internal/fingerprint"
	"github.com/hieucao/anki-vibe/internal/localrepo"
	"github.com/hieucao/anki-vibe/internal/schema"
)

// DefaultWorkers is the number of collections fetched at once.
const DefaultWorkers = 5

// ErrState wraps state store failures. They abort the whole run.
var ErrState = errors.New("state store failure")

// Remote is the part of AnkiConnect the engine reads from.
type Remote interface {
	ModelNames(ctx context.Context) ([]string, error)
	FindNotes(ctx context.Context, query string) ([]int64, error)
	NotesInfo(ctx context.Context, ids []int64) ([]anki.NoteInfo, error)
	CardsInfo(ctx context.Context, ids []int64) ([]anki.CardInfo, error)
	ModelStyling(ctx context.Context, model string) (string, error)
	ModelTemplates(ctx context.Context, model string) (map[string]anki.CardTemplate, error)
}

// HashStore is the fingerprint store the engine seeds.
type HashStore interface {
	SetNoteHashContext(ctx context.Context, id int64, hash string) error
	SetModelHashContext(ctx context.Context, name, hash string) error
}

// Target is one collection to pull.
type Target struct {
	Name  string
	Dir   string
	Model string
	// Query selects the notes. Empty means every note of Model.
	Query string
}

// ModelQuery is the search that selects every note of a model.
func ModelQuery(model string) string {
	return `note:"` + strings.ReplaceAll(model, `"`, `\"`) + `"`
}

// CollectionResult reports one pulled collection.
type CollectionResult struct {
	Name       string
	Model      string
	Notes      int
	Unresolved int // notes whose deck could not be resolved
	Err        error
}

// Result aggregates a pull run.
type Result struct {
	Collections []CollectionResult
	Removed     []string // stale folders deleted in whole-profile mode
}

// Failed counts collections that ended with an error.
func (r *Result) Failed() int {
	n := 0
	for _, c := range r.Collections {
		if c.Err != nil {
			n++
		}
	}
	return n
}

// Notes counts pulled notes across collections.
func (r *Result) Notes() int {
	n := 0
	for _, c := range r.Collections {
		n += c.Notes
	}
	return n
}

// Options tunes an Engine.
type Options struct {
	Workers int
}

// Engine pulls from Anki.
type Engine struct {
	remote Remote
	store  HashStore
	repo   *localrepo.Repository
	logger zerolog.Logger
	opts   Options
}

// New creates an Engine.
func New(remote Remote, store HashStore, repo *localrepo.Repository, logger zerolog.Logger, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Engine{
		remote: remote,
		store:  store,
		repo:   repo,
		logger: logger.With().Str("component", "pull").Logger(),
		opts:   opts,
	}
}

// PullProfile pulls every note type into its own folder under root, then
// deletes folders under root that no longer match a note type.
func (e *Engine) PullProfile(ctx context.Context, root string) (*Result, error) {
	models, err := e.remote.ModelNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list note types: %w", err)
	}

	targets := make([]Target, 0, len(models))
	expected := make(map[string]bool, len(models))
	for _, m := range models {
		dir := filepath.Join(root, schema.SanitizeFilename(m))
		if expected[dir] {
			e.logger.Warn().Str("model", m).Str("dir", dir).Msg("note type name collides with another after sanitizing, skipping")
			continue
		}
		expected[dir] = true
		targets = append(targets, Target{Name: m, Dir: dir, Model: m})
	}

	result, err := e.Pull(ctx, targets)
	if err != nil {
		return result, err
	}

	existing, err := e.repo.Collections(root)
	if err != nil {
		return result, err
	}
	for _, dir := range existing {
		if expected[dir] {
			continue
		}
		e.logger.Info().Str("dir", dir).Msg("removing stale collection folder")
		if err := e.repo.RemoveCollection(dir); err != nil {
			e.logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove stale folder")
			continue
		}
		result.Removed = append(result.Removed, dir)
	}
	return result, nil
}

// Pull fetches targets in parallel. Only declared targets are touched.
func (e *Engine) Pull(ctx context.Context, targets []Target) (*Result, error) {
	e.logger.Info().Int("collections", len(targets)).Int("workers", e.opts.Workers).Msg("starting pull")

	result := &Result{Collections: make([]CollectionResult, len(targets))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, t := range targets {
		g.Go(func() error {
			cr, err := e.pullOne(gctx, t)
			result.Collections[i] = cr
			if errors.Is(err, ErrState) {
				return err
			}
			if err != nil {
				e.logger.Warn().Err(err).Str("collection", t.Name).Msg("collection failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	e.logger.Info().Int("collections", len(targets)).Int("failed", result.Failed()).Int("notes", result.Notes()).
		Msg("pull complete")
	return result, nil
}

func (e *Engine) pullOne(ctx context.Context, t Target) (CollectionResult, error) {
	cr := CollectionResult{Name: t.Name, Model: t.Model}
	log := e.logger.With().Str("collection", t.Name).Str("model", t.Model).Logger()

	fail := func(err error) (CollectionResult, error) {
		cr.Err = err
		return cr, err
	}

	if err := e.repo.EnsureDir(t.Dir); err != nil {
		return fail(err)
	}
	if err := e.pullStructure(ctx, t); err != nil {
		return fail(err)
	}

	query := t.Query
	if query == "" {
		query = ModelQuery(t.Model)
	}
	ids, err := e.remote.FindNotes(ctx, query)
	if err != nil {
		return fail(fmt.Errorf("failed to find notes: %w", err))
	}
	infos, err := e.remote.NotesInfo(ctx, ids)
	if err != nil {
		return fail(fmt.Errorf("failed to fetch notes: %w", err))
	}
	decks, err := e.deckLookup(ctx, infos)
	if err != nil {
		return fail(fmt.Errorf("failed to fetch cards: %w", err))
	}

	notes := make([]localrepo.RemoteNote, 0, len(infos))
	for _, info := range infos {
		deck := resolveDeck(info, decks, log)
		if deck == schema.UnresolvedDeck {
			cr.Unresolved++
		}
		note := localrepo.RemoteNote{
			ID:     info.NoteID,
			Deck:   deck,
			Tags:   info.Tags,
			Fields: orderedFields(info),
		}
		hash := fingerprint.Note(deck, info.Tags, info.FieldMap())
		if err := e.store.SetNoteHashContext(ctx, info.NoteID, hash); err != nil {
			return fail(fmt.Errorf("%w: %w", ErrState, err))
		}
		notes = append(notes, note)
	}

	if err := e.repo.WriteNotes(t.Dir, notes); err != nil {
		return fail(err)
	}
	cr.Notes = len(notes)

	if cr.Unresolved > 0 {
		log.Warn().Int("notes", cr.Unresolved).Str("deck", schema.UnresolvedDeck).Msg("some notes have no resolvable deck")
	}
	log.Info().Int("notes", cr.Notes).Msg("collection pulled")
	return cr, nil
}

// pullStructure writes config.yaml, style.css and template files, and
// seeds the model fingerprint exactly as sync will compute it from those
// files.
func (e *Engine) pullStructure(ctx context.Context, t Target) error {
	css, err := e.remote.ModelStyling(ctx, t.Model)
	if err != nil {
		return fmt.Errorf("failed to fetch styling: %w", err)
	}
	templates, err := e.remote.ModelTemplates(ctx, t.Model)
	if err != nil {
		return fmt.Errorf("failed to fetch templates: %w", err)
	}

	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	mapping := make(map[string]string, len(templates))
	files := make([]schema.TemplateFile, 0, len(templates))
	for _, name := range names {
		stem := schema.TemplateStem(name)
		if prev, dup := mapping[stem]; dup {
			e.logger.Warn().Str("template", name).Str("other", prev).Msg("template file name collision, skipping")
			continue
		}
		mapping[stem] = name
		tpl := schema.TemplateFile{Stem: stem, Front: templates[name].Front, Back: templates[name].Back}
		if err := e.repo.WriteTemplate(t.Dir, tpl); err != nil {
			return err
		}
		files = append(files, tpl)
	}

	if err := e.repo.WriteStyle(t.Dir, css); err != nil {
		return err
	}
	cfg := &schema.ModelConfig{
		AnkiModelName: t.Model,
		Description:   schema.DefaultDescription(t.Model),
		Templates:     mapping,
	}
	if err := e.repo.WriteConfig(t.Dir, cfg); err != nil {
		return err
	}

	hash := schema.BuildModel(css, files, mapping).Hash()
	if err := e.store.SetModelHashContext(ctx, t.Model, hash); err != nil {
		return fmt.Errorf("%w: %w", ErrState, err)
	}
	return nil
}

// deckLookup maps card ids to deck names with one cardsInfo call.
func (e *Engine) deckLookup(ctx context.Context, infos []anki.NoteInfo) (map[int64]string, error) {
	var cardIDs []int64
	for _, info := range infos {
		cardIDs = append(cardIDs, info.Cards...)
	}
	cards, err := e.remote.CardsInfo(ctx, cardIDs)
	if err != nil {
		return nil, err
	}
	decks := make(map[int64]string, len(cards))
	for _, c := range cards {
		decks[c.CardID] = c.DeckName
	}
	return decks, nil
}

// resolveDeck returns the deck of the note's first card that has one.
// Notes whose cards span several decks keep the first; the others are
// logged at debug level.
func resolveDeck(info anki.NoteInfo, decks map[int64]string, log zerolog.Logger) string {
	deck := ""
	var others []string
	for _, cardID := range info.Cards {
		d, ok := decks[cardID]
		if !ok || d == "" {
			continue
		}
		if deck == "" {
			deck = d
		} else if d != deck {
			others = append(others, d)
		}
	}
	if deck == "" {
		return schema.UnresolvedDeck
	}
	if len(others) > 0 {
		log.Debug().Int64("note_id", info.NoteID).Str("deck", deck).Strs("also_in", others).
			Msg("note spans several decks, keeping the first")
	}
	return deck
}

// orderedFields returns the note's fields in model order.
func orderedFields(info anki.NoteInfo) []localrepo.Field {
	fields := make([]localrepo.Field, 0, len(info.Fields))
	for name, f := range info.Fields {
		fields = append(fields, localrepo.Field{Name: name, Value: f.Value})
	}
	sort.Slice(fields, func(i, j int) bool {
		oi, oj := info.Fields[fields[i].Name].Order, info.Fields[fields[j].Name].Order
		if oi != oj {
			return oi < oj
		}
		return fields[i].Name < fields[j].Name
	})
	return fields
}
