package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hieucao/anki-vibe/internal/anki"
	"github.com/hieucao/anki-vibe/internal/localrepo"
	"github.com/hieucao/anki-vibe/internal/schema"
)

// DefaultChunkSize is the maximum number of actions per multi request.
const DefaultChunkSize = 500

// ErrState wraps state store failures. They abort the whole run.
var ErrState = errors.New("state store failure")

// Options tunes an Engine.
type Options struct {
	// ChunkSize caps actions per multi request. Zero means
	// DefaultChunkSize. Values below 2 are raised to 2 so a note's field
	// and tag updates always travel together.
	ChunkSize int
	// DryRun classifies notes and reports the plan without writing to
	// Anki, the state store or the notes files.
	DryRun bool
}

// Engine pushes collections to Anki.
type Engine struct {
	remote Remote
	store  HashStore
	repo   *localrepo.Repository
	logger zerolog.Logger
	opts   Options

	// owners maps a model name to the collection whose structure files
	// are pushed for it. The first collection synced with structure files
	// claims the model.
	owners map[string]Collection
}

// New creates an Engine.
func New(remote Remote, store HashStore, repo *localrepo.Repository, logger zerolog.Logger, opts Options) *Engine {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkSize < 2 {
		opts.ChunkSize = 2
	}
	return &Engine{
		remote: remote,
		store:  store,
		repo:   repo,
		logger: logger.With().Str("component", "sync").Logger(),
		opts:   opts,
		owners: make(map[string]Collection),
	}
}

// Sync processes collections in order. Per-collection failures are
// recorded in the result and do not stop the run; a state store failure
// does and is returned.
func (e *Engine) Sync(ctx context.Context, collections []Collection) (*Result, error) {
	e.logger.Info().Int("collections", len(collections)).Bool("dry_run", e.opts.DryRun).Msg("starting sync")

	result := &Result{DryRun: e.opts.DryRun}
	for _, c := range collections {
		cr, err := e.SyncCollection(ctx, c)
		if errors.Is(err, ErrState) {
			result.Collections = append(result.Collections, cr)
			return result, err
		}
		if err != nil {
			e.logger.Warn().Err(err).Str("collection", c.Name).Msg("collection failed")
		}
		result.Collections = append(result.Collections, cr)
	}

	e.logger.Info().Msg("sync complete: " + result.Summary())
	return result, nil
}

// pendingCreate is a new note waiting for addNotes.
type pendingCreate struct {
	index int
	hash  string
	note  anki.NewNote
}

// pendingUpdate is a changed note waiting for multi.
type pendingUpdate struct {
	id   int64
	hash string
	note schema.Note
}

// SyncCollection pushes one collection. The returned error is also stored
// in the result's Err field.
func (e *Engine) SyncCollection(ctx context.Context, c Collection) (CollectionResult, error) {
	cr := CollectionResult{Collection: c.Name}
	log := e.logger.With().Str("collection", c.Name).Logger()

	fail := func(err error) (CollectionResult, error) {
		cr.Err = err
		return cr, err
	}

	// 1. Resolve model and notes file.
	model, mapping, err := e.resolveModel(c)
	if errors.Is(err, localrepo.ErrNotFound) {
		cr.Skipped, cr.SkipReason = true, "no config.yaml"
		log.Info().Msg("skipping collection without config.yaml")
		return cr, nil
	}
	if err != nil {
		return fail(err)
	}
	cr.Model = model
	log = log.With().Str("model", model).Logger()

	notes, err := e.repo.ReadNotes(c.Dir)
	if errors.Is(err, localrepo.ErrNotFound) {
		cr.Skipped, cr.SkipReason = true, "no notes.yaml"
		log.Info().Msg("skipping collection without notes.yaml")
		return cr, nil
	}
	if err != nil {
		return fail(err)
	}

	// 2. Structure.
	pushed, err := e.syncStructure(ctx, c, model, mapping, log)
	cr.StructurePushed = pushed
	if err != nil {
		return fail(err)
	}

	// 3. Classify.
	deck := c.DefaultDeck
	if deck == "" {
		deck = schema.DefaultDeck
	}
	creates, updates, err := e.classify(ctx, notes, model, deck, &cr, log)
	if err != nil {
		return fail(err)
	}

	if e.opts.DryRun {
		cr.Created = len(creates)
		cr.Updated = len(updates)
		log.Info().Int("create", cr.Created).Int("update", cr.Updated).Int("unchanged", cr.Unchanged).
			Bool("structure", cr.StructurePushed).Msg("dry run plan")
		return cr, nil
	}

	// 4. Create, then write ids back.
	if err := e.create(ctx, notes, creates, &cr, log); err != nil {
		return fail(err)
	}
	if cr.Created > 0 {
		if err := e.repo.SaveNotes(notes); err != nil {
			log.Error().Err(err).Msg("failed to write new ids back; notes already exist in Anki")
			return fail(err)
		}
	}

	// 5. Update in chunks.
	if err := e.update(ctx, updates, &cr, log); err != nil {
		return fail(err)
	}

	log.Info().Int("created", cr.Created).Int("updated", cr.Updated).Int("unchanged", cr.Unchanged).
		Int("rejected", cr.Rejected).Int("invalid", cr.Invalid).Int("update_failures", cr.Failed).
		Msg("collection synced")
	return cr, nil
}

func (e *Engine) resolveModel(c Collection) (string, map[string]string, error) {
	cfg, err := e.repo.ReadConfig(c.Dir)
	switch {
	case err == nil:
		model := cfg.AnkiModelName
		if c.Model != "" {
			model = c.Model
		}
		return model, cfg.Templates, nil
	case errors.Is(err, localrepo.ErrNotFound) && c.Model != "":
		return c.Model, nil, nil
	default:
		return "", nil, err
	}
}

// syncStructure pushes the stylesheet, and mapped templates, when their
// fingerprint differs from the stored one. Only the collection that owns
// the model pushes; other collections sharing it are compared and left
// alone.
func (e *Engine) syncStructure(ctx context.Context, c Collection, model string, mapping map[string]string, log zerolog.Logger) (bool, error) {
	dir := c.Dir
	css, err := e.repo.ReadStyle(dir)
	if err != nil {
		return false, err
	}
	files, err := e.repo.ReadTemplates(dir)
	if err != nil {
		return false, err
	}
	if css == "" && len(files) == 0 {
		log.Debug().Msg("no structure files, skipping structure sync")
		return false, nil
	}

	m := schema.BuildModel(css, files, mapping)
	hash := m.Hash()
	stored, ok, err := e.store.ModelHashContext(ctx, model)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrState, err)
	}

	owner, claimed := e.owners[model]
	if !claimed {
		e.owners[model] = c
	} else if owner.Dir != dir {
		if !ok || stored != hash {
			log.Warn().Str("owner", owner.Name).
				Msg("structure files differ from the collection that owns this model and were not pushed")
		}
		return false, nil
	}

	if ok && stored == hash {
		return false, nil
	}
	if e.opts.DryRun {
		return true, nil
	}

	log.Info().Msg("pushing model structure")
	if err := e.remote.UpdateModelStyling(ctx, model, css); err != nil {
		return false, fmt.Errorf("failed to update styling: %w", err)
	}

	pushable := m.Pushable()
	if len(pushable) > 0 {
		templates := make(map[string]anki.CardTemplate, len(pushable))
		for name, tpl := range pushable {
			templates[name] = anki.CardTemplate{Front: tpl.Front, Back: tpl.Back}
		}
		if err := e.remote.UpdateModelTemplates(ctx, model, templates); err != nil {
			return false, fmt.Errorf("failed to update templates: %w", err)
		}
	}
	if len(m.Unmapped) > 0 {
		log.Warn().Strs("templates", m.Unmapped).
			Msg("templates have no name mapping in config.yaml and were not pushed")
	}

	if err := e.store.SetModelHashContext(ctx, model, hash); err != nil {
		return true, fmt.Errorf("%w: %w", ErrState, err)
	}
	return true, nil
}

func (e *Engine) classify(ctx context.Context, notes *localrepo.Notes, model, deck string, cr *CollectionResult, log zerolog.Logger) ([]pendingCreate, []pendingUpdate, error) {
	var creates []pendingCreate
	var updates []pendingUpdate
	seen := make(map[int64]int)

	for i := range notes.Entries {
		entry := &notes.Entries[i]
		if entry.Err != nil {
			cr.Invalid++
			log.Warn().Err(entry.Err).Int("index", entry.Index).Msg("skipping unreadable note")
			continue
		}

		note := &entry.Note
		note.SetDefaults(deck)
		validate := note.Validate
		if !note.HasID() {
			validate = note.ValidateNew
		}
		if err := validate(); err != nil {
			cr.Invalid++
			log.Warn().Err(err).Int("index", entry.Index).Int("line", entry.Line).Msg("skipping invalid note")
			continue
		}
		hash := note.Hash()

		if !note.HasID() {
			creates = append(creates, pendingCreate{
				index: i,
				hash:  hash,
				note: anki.NewNote{
					DeckName:  note.Deck,
					ModelName: model,
					Fields:    note.Fields,
					Tags:      note.Tags,
				},
			})
			continue
		}

		id := *note.ID
		if line, dup := seen[id]; dup {
			cr.Invalid++
			log.Warn().Int64("note_id", id).Int("line", entry.Line).Int("first_line", line).
				Msg("skipping duplicate note id")
			continue
		}
		seen[id] = entry.Line

		stored, ok, err := e.store.NoteHashContext(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrState, err)
		}
		if ok && stored == hash {
			cr.Unchanged++
			continue
		}
		updates = append(updates, pendingUpdate{id: id, hash: hash, note: *note})
	}
	return creates, updates, nil
}

func (e *Engine) create(ctx context.Context, notes *localrepo.Notes, creates []pendingCreate, cr *CollectionResult, log zerolog.Logger) error {
	if len(creates) == 0 {
		return nil
	}

	payload := make([]anki.NewNote, len(creates))
	for i, pc := range creates {
		payload[i] = pc.note
	}

	ids, err := e.remote.AddNotes(ctx, payload)
	if err != nil {
		return fmt.Errorf("failed to add notes: %w", err)
	}
	if len(ids) != len(creates) {
		return fmt.Errorf("%w: addNotes returned %d ids for %d notes", anki.ErrProtocol, len(ids), len(creates))
	}

	for i, id := range ids {
		pc := creates[i]
		if id == nil {
			cr.Rejected++
			log.Warn().Int("index", pc.index).Int("line", notes.Entries[pc.index].Line).
				Msg("Anki rejected new note; it stays pending")
			continue
		}
		notes.SetID(pc.index, *id)
		if err := e.store.SetNoteHashContext(ctx, *id, pc.hash); err != nil {
			// Keep the id that was just assigned.
			if serr := e.repo.SaveNotes(notes); serr != nil {
				log.Error().Err(serr).Msg("failed to write new ids back")
			}
			return fmt.Errorf("%w: %w", ErrState, err)
		}
		cr.Created++
	}
	return nil
}

// update sends field and tag updates in chunks. A chunk whose request
// fails stops the remaining chunks; its notes keep their stale hashes and
// are retried on the next run. Inside a delivered chunk, a note whose own
// actions failed keeps its stale hash too.
func (e *Engine) update(ctx context.Context, updates []pendingUpdate, cr *CollectionResult, log zerolog.Logger) error {
	perChunk := e.opts.ChunkSize / 2

	for start := 0; start < len(updates); start += perChunk {
		end := min(start+perChunk, len(updates))
		chunk := updates[start:end]

		actions := make([]anki.Action, 0, 2*len(chunk))
		for _, u := range chunk {
			actions = append(actions,
				anki.UpdateNoteFieldsAction(u.id, u.note.Fields),
				anki.UpdateNoteTagsAction(u.id, u.note.Tags),
			)
		}

		results, err := e.remote.Multi(ctx, actions)
		if err != nil {
			cr.Failed += len(updates) - start
			return fmt.Errorf("failed to update notes %d-%d of %d: %w", start+1, end, len(updates), err)
		}

		for i, u := range chunk {
			if ferr := firstErr(results, 2*i, 2*i+1); ferr != nil {
				cr.Failed++
				log.Warn().Err(ferr).Int64("note_id", u.id).Msg("failed to update note")
				continue
			}
			if err := e.store.SetNoteHashContext(ctx, u.id, u.hash); err != nil {
				return fmt.Errorf("%w: %w", ErrState, err)
			}
			cr.Updated++
		}
		log.Debug().Int("chunk_start", start).Int("actions", len(actions)).Msg("update chunk sent")
	}
	return nil
}

func firstErr(results []anki.ActionResult, idx ...int) error {
	for _, i := range idx {
		if i < len(results) && results[i].Err != nil {
			return results[i].Err
		}
	}
	return nil
}
