package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"
)

// DetectionCache lets repeated scans of identical input skip the vision call.
// Keys are content hashes; a nil cache disables caching.
type DetectionCache interface {
	GetDetection(ctx context.Context, key string) (DetectionResult, bool)
	SetDetection(ctx context.Context, key string, res DetectionResult)
}

// Adapter is the enrichment boundary: it wraps the external detection and
// image-generation calls with the retry budget, validates and repairs the
// detection output, and consults the content-hash cache for photo scans.
type Adapter struct {
	detector Detector
	images   ImageGenerator
	cache    DetectionCache

	// BackoffBase overrides the retry backoff start; tests shrink it.
	BackoffBase time.Duration
}

func NewAdapter(detector Detector, images ImageGenerator, cache DetectionCache) *Adapter {
	return &Adapter{detector: detector, images: images, cache: cache}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (a *Adapter) DetectMealFromPhoto(ctx context.Context, data []byte, mimeType string) (DetectionResult, error) {
	key := "detect:photo:" + contentHash(data)
	if a.cache != nil {
		if res, ok := a.cache.GetDetection(ctx, key); ok {
			return res, nil
		}
	}

	var res DetectionResult
	err := doWithRetry(ctx, a.BackoffBase, func(ctx context.Context) error {
		var err error
		res, err = a.detector.DetectFromImage(ctx, data, mimeType)
		return err
	})
	if err != nil {
		return DetectionResult{}, err
	}

	res = sanitizeDetection(res)
	if a.cache != nil {
		a.cache.SetDetection(ctx, key, res)
	}
	return res, nil
}

func (a *Adapter) DetectMealFromText(ctx context.Context, description string) (DetectionResult, error) {
	key := "detect:text:" + contentHash([]byte(description))
	if a.cache != nil {
		if res, ok := a.cache.GetDetection(ctx, key); ok {
			return res, nil
		}
	}

	var res DetectionResult
	err := doWithRetry(ctx, a.BackoffBase, func(ctx context.Context) error {
		var err error
		res, err = a.detector.DetectFromText(ctx, description)
		return err
	})
	if err != nil {
		return DetectionResult{}, err
	}

	res = sanitizeDetection(res)
	if a.cache != nil {
		a.cache.SetDetection(ctx, key, res)
	}
	return res, nil
}

func (a *Adapter) GenerateIngredientImage(ctx context.Context, displayName string) ([]byte, error) {
	var data []byte
	err := doWithRetry(ctx, a.BackoffBase, func(ctx context.Context) error {
		var err error
		data, err = a.images.GenerateImage(ctx, displayName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// sanitizeDetection repairs upstream contract violations instead of failing
// the scan: a missing ingredient list degrades to an empty low-confidence
// result, a missing dish title is synthesized. Name/title collisions are a
// data-quality signal and get logged, never masked.
func sanitizeDetection(res DetectionResult) DetectionResult {
	if res.Ingredients == nil {
		log.Printf("detect: response without usable ingredient list, degrading to empty result")
		res.Ingredients = []DetectedIngredient{}
		res.Confidence = 0
	}

	if strings.TrimSpace(res.DishTitle) == "" {
		if len(res.Ingredients) == 1 && strings.TrimSpace(res.Ingredients[0].Name) != "" {
			res.DishTitle = res.Ingredients[0].Name
		} else {
			res.DishTitle = "Mixed meal"
		}
		log.Printf("detect: missing dish title, synthesized %q", res.DishTitle)
	}

	titleWords := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(res.DishTitle)) {
		titleWords[w] = true
	}
	for _, ing := range res.Ingredients {
		if titleWords[strings.ToLower(strings.TrimSpace(ing.Name))] {
			log.Printf("detect: ingredient name %q collides with dish title %q", ing.Name, res.DishTitle)
		}
	}

	return res
}
