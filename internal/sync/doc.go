// Package sync pushes local collection folders into Anki.
//
// Overview
//
// For every collection the engine decides, per note, whether it is new,
// changed or unchanged, and issues the fewest AnkiConnect calls that
// bring Anki in line with the local files:
//
//	notes.yaml ─┬─ no id ─────────────────────→ addNotes (one call)
//	            └─ id, hash ≠ stored hash ───→ multi[updateNoteFields, updateNoteTags]
//	                                             (chunks of 500 actions)
//	style.css + templates ── hash ≠ stored ──→ updateModelStyling / updateModelTemplates
//
// Stored hashes live in the state store. A hash is written only after Anki
// has accepted the corresponding change, so anything that failed is
// retried on the next run. Ids assigned by addNotes are written back into
// notes.yaml with the rest of the file left as it was.
//
// Collections are processed one after another. A failure in one
// collection is logged and recorded in its result; the others still run.
// State store failures stop the whole run.
//
// Usage
//
//	engine := sync.New(client, store, localrepo.New(afero.NewOsFs()), logger, sync.Options{})
//	result, err := engine.Sync(ctx, collections)
//	if err != nil {
//	    return err // state store failure
//	}
//	fmt.Println(result.Summary())
package sync
