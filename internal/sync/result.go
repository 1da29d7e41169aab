package sync

import "fmt"

// CollectionResult reports what happened to one collection. In a dry run
// Created and Updated count planned actions.
type CollectionResult struct {
	Collection string
	Model      string

	Created   int
	Updated   int
	Unchanged int
	Rejected  int // creates Anki answered with a null id
	Invalid   int // notes skipped by validation
	Failed    int // updates that did not go through

	StructurePushed bool
	Skipped         bool
	SkipReason      string
	Err             error
}

// Result aggregates a sync run.
type Result struct {
	DryRun      bool
	Collections []CollectionResult
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

// AllFailed reports whether every attempted collection failed, i.e. no
// work could be done at all.
func (r *Result) AllFailed() bool {
	attempted := 0
	for _, c := range r.Collections {
		if !c.Skipped {
			attempted++
		}
	}
	return attempted > 0 && r.Failed() == attempted
}

// Totals sums the per-collection counters.
func (r *Result) Totals() CollectionResult {
	var t CollectionResult
	for _, c := range r.Collections {
		t.Created += c.Created
		t.Updated += c.Updated
		t.Unchanged += c.Unchanged
		t.Rejected += c.Rejected
		t.Invalid += c.Invalid
		t.Failed += c.Failed
	}
	return t
}

// Summary renders a one-line summary.
func (r *Result) Summary() string {
	t := r.Totals()
	if r.DryRun {
		return fmt.Sprintf("dry run: collections=%d (failed=%d) would_create=%d would_update=%d unchanged=%d invalid=%d",
			len(r.Collections), r.Failed(), t.Created, t.Updated, t.Unchanged, t.Invalid)
	}
	return fmt.Sprintf("collections=%d (failed=%d) created=%d updated=%d unchanged=%d rejected=%d invalid=%d update_failures=%d",
		len(r.Collections), r.Failed(), t.Created, t.Updated, t.Unchanged, t.Rejected, t.Invalid, t.Failed)
}
