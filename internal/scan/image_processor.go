package scan

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/snapbite/mealscan/internal/store/blob"
	"github.com/snapbite/mealscan/internal/transcode"
)

// ThumbnailGenerator is the slice of the enrichment adapter the image
// processor needs.
type ThumbnailGenerator interface {
	GenerateIngredientImage(ctx context.Context, displayName string) ([]byte, error)
}

// ImageProcessor runs claimed image jobs: generate, best-effort transcode,
// upload, and project the URL onto the ingredient.
type ImageProcessor struct {
	repo       *Repo
	generator  ThumbnailGenerator
	transcoder transcode.Transcoder
	blobs      blob.Store
}

func NewImageProcessor(repo *Repo, generator ThumbnailGenerator, transcoder transcode.Transcoder, blobs blob.Store) *ImageProcessor {
	return &ImageProcessor{repo: repo, generator: generator, transcoder: transcoder, blobs: blobs}
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func (p *ImageProcessor) Process(ctx context.Context, ingredientID string) error {
	ing, err := p.repo.GetIngredient(ctx, ingredientID)
	if err != nil {
		return fmt.Errorf("fetch ingredient %s: %w", ingredientID, err)
	}

	data, err := p.generator.GenerateIngredientImage(ctx, ing.DisplayName)
	if err != nil {
		return err
	}

	upload := data
	contentType := http.DetectContentType(data)
	if p.transcoder != nil {
		out, ct, terr := p.transcoder.Transcode(data)
		if terr != nil {
			// transcoding is best-effort, ship the original format
			log.Printf("imagejob: transcode id=%s err=%v, uploading original", ingredientID, terr)
		} else {
			upload, contentType = out, ct
		}
	}

	key := "ingredients/" + ing.Slug + extensionFor(contentType)
	url, err := p.blobs.Upload(ctx, key, upload, contentType)
	if err != nil {
		return err
	}

	return p.repo.FinishImageJob(ctx, ingredientID, url, key)
}
