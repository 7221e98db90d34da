package ai

import (
	"context"
	"fmt"
)

// DetectedIngredient mirrors one row of the enrichment service's
// ingredientsList.
type DetectedIngredient struct {
	Name             string  `json:"name"`
	PortionText      string  `json:"portion_text"`
	EstimatedWeightG float64 `json:"estimated_weight_g"`
	Calories         float64 `json:"calories"`
	Macros           Macros  `json:"macros"`
	Notes            string  `json:"notes,omitempty"`
}

type Macros struct {
	Protein float64 `json:"p"`
	Carbs   float64 `json:"c"`
	Fat     float64 `json:"f"`
}

type DetectionResult struct {
	DishTitle   string               `json:"dishTitle"`
	Ingredients []DetectedIngredient `json:"ingredientsList"`
	Confidence  float64              `json:"confidence"`
}

// Detector is the food understanding service boundary.
type Detector interface {
	DetectFromImage(ctx context.Context, data []byte, mimeType string) (DetectionResult, error)
	DetectFromText(ctx context.Context, description string) (DetectionResult, error)
}

// ImageGenerator turns an ingredient display name into thumbnail bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, displayName string) ([]byte, error)
}

// StatusError carries the upstream HTTP status so the retry helper can tell
// transient failures from auth/malformed-request errors.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Code)
}
