package scan

import (
	"context"
	"log"
	"strings"
)

// JobPublisher announces queued jobs to the dispatch transport.
type JobPublisher interface {
	PublishImageJob(ctx context.Context, ingredientID string) error
}

// Resolver maps free-text ingredient names onto stable identities and decides
// whether thumbnail generation must be (re)queued.
type Resolver struct {
	repo      *Repo
	publisher JobPublisher
}

func NewResolver(repo *Repo, publisher JobPublisher) *Resolver {
	return &Resolver{repo: repo, publisher: publisher}
}

// Resolve canonicalizes the name, upserts the ingredient identity, and
// enqueues an image job unless a thumbnail already exists or generation is
// already pending. Returns the ingredient id, or "" when the name has no
// canonical form (nothing to identify; the ingredient rides along without a
// thumbnail).
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	canonical := Canonicalize(name)
	if canonical == "" {
		log.Printf("resolver: name %q has no canonical form, skipping identity", name)
		return "", nil
	}

	id := IngredientID(canonical)
	slug := Slugify(canonical)
	display := strings.TrimSpace(name)

	var (
		enqueue bool
		err     error
	)
	for attempt := 0; attempt < 2; attempt++ {
		enqueue, err = r.repo.UpsertIngredient(ctx, id, canonical, display, slug)
		if err == nil {
			break
		}
		// Lost a first-writer race on the primary key; the retry rereads the
		// winner's rows and lands on the dedup path.
	}
	if err != nil {
		return "", err
	}

	if enqueue && r.publisher != nil {
		if perr := r.publisher.PublishImageJob(ctx, id); perr != nil {
			// The rows already say queued; an operator sweep republishes
			// lost messages (ListQueuedImageJobs).
			log.Printf("resolver: publish image job id=%s err=%v", id, perr)
		}
	}

	return id, nil
}
