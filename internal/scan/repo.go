package scan

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// maxErrorLen bounds the error text persisted on failed jobs.
const maxErrorLen = 500

func truncateError(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// --- meals ---

func (r *Repo) CreateMealWithScanJob(ctx context.Context, meal *MealLog, job *ScanJob) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(meal).Error; err != nil {
			return err
		}
		return tx.Create(job).Error
	})
}

func (r *Repo) GetMeal(ctx context.Context, id string) (*MealLog, error) {
	var m MealLog
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) ListMeals(ctx context.Context, userID uint64, limit int) ([]MealLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var meals []MealLog
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&meals).Error; err != nil {
		return nil, err
	}
	return meals, nil
}

// CancelMeal marks a meal cancelled. Rows are never deleted so an in-flight
// processor can still read the status and stop cooperatively.
func (r *Repo) CancelMeal(ctx context.Context, userID uint64, id string) error {
	res := r.db.WithContext(ctx).Model(&MealLog{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("status", MealCancelled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FinalizeMealReady projects the enrichment result onto the parent meal.
func (r *Repo) FinalizeMealReady(ctx context.Context, mealID, scanID, dishTitle string, ingredients MealIngredients, totals Totals, confidence float64) error {
	return r.db.WithContext(ctx).Model(&MealLog{}).
		Where("id = ?", mealID).
		Updates(map[string]any{
			"status":         MealReady,
			"dish_title":     dishTitle,
			"ingredients":    ingredients,
			"total_calories": totals.Calories,
			"protein":        totals.Protein,
			"carbs":          totals.Carbs,
			"fat":            totals.Fat,
			"confidence":     confidence,
			"scan_id":        scanID,
		}).Error
}

// --- scan jobs ---

func (r *Repo) GetScanJob(ctx context.Context, id string) (*ScanJob, error) {
	var j ScanJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) GetScanJobByIdempotencyKey(ctx context.Context, userID uint64, key string) (*ScanJob, error) {
	var j ScanJob
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateMealWithScanJobOrGetExisting creates the pending meal and its queued
// job in one transaction. If the job's idempotency key already exists, the
// existing job is returned instead and nothing is created.
func (r *Repo) CreateMealWithScanJobOrGetExisting(ctx context.Context, meal *MealLog, job *ScanJob) (*ScanJob, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.CreateMealWithScanJob(ctx, meal, job); err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.CreateMealWithScanJob(ctx, meal, job)
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetScanJobByIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

// ClaimScanJob is the sole concurrency gate for scan processing: a single
// conditional update that moves queued -> processing and counts the attempt.
// Returns false when another invocation already claimed the job (or the job is
// terminal), in which case the caller must exit without side effects.
func (r *Repo) ClaimScanJob(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&ScanJob{}).
		Where("id = ? AND status = ?", id, ScanQueued).
		Updates(map[string]any{
			"status":   ScanProcessing,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) MarkScanJobDone(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&ScanJob{}).
		Where("id = ? AND status = ?", id, ScanProcessing).
		Update("status", ScanDone).Error
}

func (r *Repo) MarkScanJobCancelled(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&ScanJob{}).
		Where("id = ? AND status = ?", id, ScanProcessing).
		Update("status", ScanCancelled).Error
}

func (r *Repo) MarkScanJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&ScanJob{}).
		Where("id = ? AND status = ?", id, ScanProcessing).
		Updates(map[string]any{
			"status": ScanFailed,
			"error":  truncateError(errMsg),
		}).Error
}

// --- ingredients / image jobs ---

func (r *Repo) GetIngredient(ctx context.Context, id string) (*Ingredient, error) {
	var ing Ingredient
	if err := r.db.WithContext(ctx).First(&ing, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ing, nil
}

func (r *Repo) GetImageJob(ctx context.Context, ingredientID string) (*ImageJob, error) {
	var j ImageJob
	if err := r.db.WithContext(ctx).First(&j, "ingredient_id = ?", ingredientID).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// UpsertIngredient runs the resolver's upsert + dedup decision in one
// transaction: refresh display metadata, and decide whether thumbnail
// generation must be (re)queued. When it returns enqueue=true, the ingredient
// imageStatus and the ImageJob row were both set to queued atomically, so the
// two documents cannot disagree about pending generation.
func (r *Repo) UpsertIngredient(ctx context.Context, id, canonical, display, slug string) (enqueue bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ing Ingredient
		ingErr := tx.First(&ing, "id = ?", id).Error
		if ingErr != nil && !errors.Is(ingErr, gorm.ErrRecordNotFound) {
			return ingErr
		}
		exists := ingErr == nil

		var job ImageJob
		jobErr := tx.First(&job, "ingredient_id = ?", id).Error
		if jobErr != nil && !errors.Is(jobErr, gorm.ErrRecordNotFound) {
			return jobErr
		}
		hasJob := jobErr == nil

		enqueue = true
		if exists && ing.ImageURL != "" {
			enqueue = false
		} else if hasJob && (job.Status == ImageQueued || job.Status == ImageGenerating) {
			enqueue = false
		}

		if !exists {
			ing = Ingredient{
				ID:            id,
				CanonicalName: canonical,
				DisplayName:   display,
				Slug:          slug,
			}
			if enqueue {
				ing.ImageStatus = ImageQueued
			} else {
				// only reachable via an orphaned pending job row
				ing.ImageStatus = job.Status
			}
			if err := tx.Create(&ing).Error; err != nil {
				return err
			}
		} else {
			updates := map[string]any{
				"canonical_name": canonical,
				"display_name":   display,
				"slug":           slug,
			}
			if enqueue {
				updates["image_status"] = ImageQueued
			}
			if err := tx.Model(&Ingredient{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}

		if enqueue {
			if hasJob {
				return tx.Model(&ImageJob{}).
					Where("ingredient_id = ?", id).
					Updates(map[string]any{"status": ImageQueued, "error": ""}).Error
			}
			return tx.Create(&ImageJob{IngredientID: id, Status: ImageQueued}).Error
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return enqueue, nil
}

// ClaimImageJob moves queued -> generating for both the job and the
// ingredient, same CAS discipline as scan jobs.
func (r *Repo) ClaimImageJob(ctx context.Context, ingredientID string) (bool, error) {
	claimed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ImageJob{}).
			Where("ingredient_id = ? AND status = ?", ingredientID, ImageQueued).
			Updates(map[string]any{
				"status":   ImageGenerating,
				"attempts": gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		claimed = true
		return tx.Model(&Ingredient{}).
			Where("id = ?", ingredientID).
			Update("image_status", ImageGenerating).Error
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// FinishImageJob records the uploaded thumbnail on both documents.
func (r *Repo) FinishImageJob(ctx context.Context, ingredientID, imageURL, storagePath string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ImageJob{}).
			Where("ingredient_id = ?", ingredientID).
			Updates(map[string]any{"status": ImageReady, "error": ""}).Error; err != nil {
			return err
		}
		return tx.Model(&Ingredient{}).
			Where("id = ?", ingredientID).
			Updates(map[string]any{
				"image_status": ImageReady,
				"image_url":    imageURL,
				"storage_path": storagePath,
			}).Error
	})
}

func (r *Repo) FailImageJob(ctx context.Context, ingredientID string, errMsg string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ImageJob{}).
			Where("ingredient_id = ?", ingredientID).
			Updates(map[string]any{"status": ImageFailed, "error": truncateError(errMsg)}).Error; err != nil {
			return err
		}
		return tx.Model(&Ingredient{}).
			Where("id = ?", ingredientID).
			Update("image_status", ImageFailed).Error
	})
}

// --- operational queries ---

// StaleProcessingScanJobs lists jobs stuck mid-processing (worker crash gap;
// there is no watchdog, operators sweep these by hand).
func (r *Repo) StaleProcessingScanJobs(ctx context.Context, olderThan time.Duration) ([]ScanJob, error) {
	var jobs []ScanJob
	cutoff := time.Now().Add(-olderThan)
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", ScanProcessing, cutoff).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListQueuedImageJobs lists image jobs whose row is queued but whose dispatch
// message may have been lost (publish happens after the upsert commits).
func (r *Repo) ListQueuedImageJobs(ctx context.Context, olderThan time.Duration) ([]ImageJob, error) {
	var jobs []ImageJob
	cutoff := time.Now().Add(-olderThan)
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", ImageQueued, cutoff).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
