package scan

import (
	"context"
	"log"
	"time"
)

// Dispatcher is the entry point for queue deliveries. Each handler claims its
// job with a single compare-and-set transition; losing claimants exit without
// side effects, which is what makes at-least-once delivery safe.
type Dispatcher struct {
	repo   *Repo
	scans  *Processor
	images *ImageProcessor
}

func NewDispatcher(repo *Repo, scans *Processor, images *ImageProcessor) *Dispatcher {
	return &Dispatcher{repo: repo, scans: scans, images: images}
}

// HandleScanJob claims and processes one scan job. A failed claim is an
// expected race (redelivery, duplicate trigger, terminal job), not an error.
func (d *Dispatcher) HandleScanJob(ctx context.Context, jobID string) error {
	claimed, err := d.repo.ClaimScanJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("dispatch: scan job=%s not claimable, skipping", jobID)
		return nil
	}

	job, err := d.repo.GetScanJob(ctx, jobID)
	if err != nil {
		_ = d.repo.MarkScanJobFailed(ctx, jobID, err.Error())
		return err
	}

	start := time.Now()
	if err := d.scans.Process(ctx, job); err != nil {
		log.Printf("dispatch: scan job=%s failed cost=%s err=%v", jobID, time.Since(start), err)
		if mErr := d.repo.MarkScanJobFailed(ctx, jobID, err.Error()); mErr != nil {
			log.Printf("dispatch: scan job=%s mark failed err=%v", jobID, mErr)
		}
		return err
	}

	if cost := time.Since(start); cost > 2*time.Second {
		log.Printf("dispatch: scan job=%s done cost=%s", jobID, cost)
	}
	return nil
}

// HandleImageJob claims and processes one thumbnail job, keyed by ingredient
// identity.
func (d *Dispatcher) HandleImageJob(ctx context.Context, ingredientID string) error {
	claimed, err := d.repo.ClaimImageJob(ctx, ingredientID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("dispatch: image job=%s not claimable, skipping", ingredientID)
		return nil
	}

	start := time.Now()
	if err := d.images.Process(ctx, ingredientID); err != nil {
		log.Printf("dispatch: image job=%s failed cost=%s err=%v", ingredientID, time.Since(start), err)
		if mErr := d.repo.FailImageJob(ctx, ingredientID, err.Error()); mErr != nil {
			log.Printf("dispatch: image job=%s mark failed err=%v", ingredientID, mErr)
		}
		return err
	}
	return nil
}
