package handlers

import (
	"context"

	"gorm.io/gorm"

	"github.com/snapbite/mealscan/internal/config"
	"github.com/snapbite/mealscan/internal/scan"
	"github.com/snapbite/mealscan/internal/store/blob"
)

// ScanPublisher announces newly queued scan jobs; tests swap in a fake.
type ScanPublisher interface {
	PublishScanJob(ctx context.Context, jobID string) error
}

type Handler struct {
	Cfg       config.Config
	Repo      *scan.Repo
	Publisher ScanPublisher
	Blobs     blob.Store
}

func NewHandler(db *gorm.DB, cfg config.Config, publisher ScanPublisher, blobs blob.Store) *Handler {
	return &Handler{
		Cfg:       cfg,
		Repo:      scan.NewRepo(db),
		Publisher: publisher,
		Blobs:     blobs,
	}
}
