package handlers

import (
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/snapbite/mealscan/internal/common"
	"github.com/snapbite/mealscan/internal/httpapi/middleware"
	"github.com/snapbite/mealscan/internal/scan"
)

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

type createTextScanReq struct {
	Description string `json:"description" binding:"required"`
}

// CreateScan accepts either a JSON text description or a multipart photo,
// creates the pending meal plus its queued scan job, and publishes the job id.
// The pipeline owns every transition from here on.
func (h *Handler) CreateScan(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	mealID := ulid.Make().String()
	scanID := ulid.Make().String()

	job := &scan.ScanJob{
		ID:     scanID,
		Status: scan.ScanQueued,
		MealID: mealID,
		UserID: uid,
	}
	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
		job.IdempotencyKey = &key
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("photo")
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10002, "photo file is required")
			return
		}
		f, err := fh.Open()
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10002, "cannot read photo")
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil || len(data) == 0 {
			common.Fail(c, http.StatusBadRequest, 10002, "cannot read photo")
			return
		}

		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if ext == "" {
			ext = ".jpg"
		}
		key := "scans/" + scanID + ext
		if _, err := h.Blobs.Upload(c.Request.Context(), key, data, http.DetectContentType(data)); err != nil {
			log.Printf("scans: upload photo scan=%s err=%v", scanID, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to store photo")
			return
		}
		job.Source = scan.SourcePhoto
		job.StoragePath = key
	} else {
		var req createTextScanReq
		if err := c.ShouldBindJSON(&req); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
			return
		}
		job.Source = scan.SourceText
		job.TextDescription = req.Description
	}

	meal := &scan.MealLog{
		ID:     mealID,
		UserID: uid,
		Status: scan.MealPendingScan,
		ScanID: scanID,
	}

	created, isNew, err := h.Repo.CreateMealWithScanJobOrGetExisting(c.Request.Context(), meal, job)
	if err != nil {
		log.Printf("scans: create scan=%s err=%v", scanID, err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to create scan")
		return
	}
	if !isNew {
		// duplicate submission; the original job is already dispatched
		common.OK(c, gin.H{"meal_id": created.MealID, "scan_id": created.ID})
		return
	}

	if err := h.Publisher.PublishScanJob(c.Request.Context(), created.ID); err != nil {
		// rows persist as queued; operators can republish lost dispatches
		log.Printf("scans: publish scan=%s err=%v", created.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to enqueue scan")
		return
	}

	common.OK(c, gin.H{"meal_id": created.MealID, "scan_id": created.ID})
}

func (h *Handler) GetScanJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	job, err := h.Repo.GetScanJob(c.Request.Context(), c.Param("id"))
	if err != nil || job.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40401, "scan not found")
		return
	}

	common.OK(c, gin.H{
		"scan_id":  job.ID,
		"status":   job.Status,
		"source":   job.Source,
		"meal_id":  job.MealID,
		"attempts": job.Attempts,
		"error":    job.Error,
	})
}
