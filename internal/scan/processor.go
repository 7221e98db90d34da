package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/snapbite/mealscan/internal/ai"
	"github.com/snapbite/mealscan/internal/store/blob"
)

// Input errors fail the job immediately; there is nothing to retry.
var (
	ErrMissingStoragePath = errors.New("photo scan job without storage path")
	ErrMissingDescription = errors.New("text scan job without description")
)

// Enricher is the slice of the enrichment adapter the scan processor needs.
type Enricher interface {
	DetectMealFromPhoto(ctx context.Context, data []byte, mimeType string) (ai.DetectionResult, error)
	DetectMealFromText(ctx context.Context, description string) (ai.DetectionResult, error)
}

// Processor runs claimed scan jobs: enrichment, identity resolution,
// aggregation, and the final projection onto the parent meal.
type Processor struct {
	repo     *Repo
	enricher Enricher
	resolver *Resolver
	blobs    blob.Store
}

func NewProcessor(repo *Repo, enricher Enricher, resolver *Resolver, blobs blob.Store) *Processor {
	return &Processor{repo: repo, enricher: enricher, resolver: resolver, blobs: blobs}
}

// Process takes a job already claimed by the dispatcher to a terminal state.
// A returned error means the caller must finalize the job as failed; the
// cancelled path is finalized here because it is an expected outcome, not a
// failure.
func (p *Processor) Process(ctx context.Context, job *ScanJob) error {
	// Cancellation is cooperative and checked once, before any external
	// spend. A meal deleted or cancelled after this point keeps its result.
	if job.MealID != "" {
		meal, err := p.repo.GetMeal(ctx, job.MealID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Printf("scan: job=%s meal=%s gone, cancelling", job.ID, job.MealID)
			return p.repo.MarkScanJobCancelled(ctx, job.ID)
		case err != nil:
			return fmt.Errorf("fetch meal %s: %w", job.MealID, err)
		case meal.Status == MealCancelled:
			log.Printf("scan: job=%s meal=%s cancelled, skipping enrichment", job.ID, job.MealID)
			return p.repo.MarkScanJobCancelled(ctx, job.ID)
		}
	}

	res, err := p.detect(ctx, job)
	if err != nil {
		return err
	}

	items := make(MealIngredients, 0, len(res.Ingredients))
	for _, d := range res.Ingredients {
		id, rerr := p.resolver.Resolve(ctx, d.Name)
		if rerr != nil {
			return fmt.Errorf("resolve %q: %w", d.Name, rerr)
		}
		items = append(items, MealIngredient{
			ID:               id,
			Name:             d.Name,
			PortionText:      d.PortionText,
			EstimatedWeightG: d.EstimatedWeightG,
			Calories:         d.Calories,
			Macros:           Macros(d.Macros),
			Notes:            d.Notes,
		})
	}

	totals := Aggregate(items)

	if job.MealID != "" {
		if err := p.repo.FinalizeMealReady(ctx, job.MealID, job.ID, res.DishTitle, items, totals, res.Confidence); err != nil {
			return fmt.Errorf("finalize meal %s: %w", job.MealID, err)
		}
	}

	return p.repo.MarkScanJobDone(ctx, job.ID)
}

func (p *Processor) detect(ctx context.Context, job *ScanJob) (ai.DetectionResult, error) {
	switch job.Source {
	case SourcePhoto:
		if job.StoragePath == "" {
			return ai.DetectionResult{}, ErrMissingStoragePath
		}
		data, err := p.blobs.Download(ctx, job.StoragePath)
		if err != nil {
			return ai.DetectionResult{}, err
		}
		return p.enricher.DetectMealFromPhoto(ctx, data, http.DetectContentType(data))
	case SourceText:
		if strings.TrimSpace(job.TextDescription) == "" {
			return ai.DetectionResult{}, ErrMissingDescription
		}
		return p.enricher.DetectMealFromText(ctx, job.TextDescription)
	default:
		return ai.DetectionResult{}, fmt.Errorf("unknown scan source %q", job.Source)
	}
}
