package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/snapbite/mealscan/internal/config"
	"github.com/snapbite/mealscan/internal/httpapi/middleware"
	"github.com/snapbite/mealscan/internal/scan"
)

var testDBSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlertest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&scan.MealLog{}, &scan.ScanJob{}, &scan.Ingredient{}, &scan.ImageJob{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakePublisher struct {
	scanJobs []string
}

func (f *fakePublisher) PublishScanJob(ctx context.Context, jobID string) error {
	_ = ctx
	f.scanJobs = append(f.scanJobs, jobID)
	return nil
}

type fakeBlobStore struct {
	objects map[string][]byte
}

func (f *fakeBlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_ = ctx
	_ = contentType
	f.objects[key] = data
	return "https://blobs.test/" + key + "?token=tok", nil
}

func (f *fakeBlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("blob: get %s: not found", key)
	}
	return data, nil
}

func newTestHandler(t *testing.T) (*Handler, *fakePublisher, *fakeBlobStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	pub := &fakePublisher{}
	blobs := &fakeBlobStore{objects: map[string][]byte{}}
	h := NewHandler(openTestDB(t), config.Config{}, pub, blobs)
	return h, pub, blobs
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doCreateScan(t *testing.T, h *Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Set(middleware.UserIDKey, uint64(1))
	h.CreateScan(c)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return w, env
}

func textScanRequest(description, idempotencyKey string) *http.Request {
	body, _ := json.Marshal(map[string]string{"description": description})
	req := httptest.NewRequest(http.MethodPost, "/scans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return req
}

func TestCreateTextScan(t *testing.T) {
	h, pub, _ := newTestHandler(t)

	w, env := doCreateScan(t, h, textScanRequest("2 scrambled eggs with toast", ""))
	if w.Code != http.StatusOK || env.Code != 0 {
		t.Fatalf("status=%d code=%d message=%q", w.Code, env.Code, env.Message)
	}

	var data struct {
		MealID string `json:"meal_id"`
		ScanID string `json:"scan_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	job, err := h.Repo.GetScanJob(context.Background(), data.ScanID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != scan.ScanQueued {
		t.Errorf("job status = %s, want queued", job.Status)
	}
	if job.Source != scan.SourceText {
		t.Errorf("job source = %s, want text", job.Source)
	}

	meal, err := h.Repo.GetMeal(context.Background(), data.MealID)
	if err != nil {
		t.Fatalf("get meal: %v", err)
	}
	if meal.Status != scan.MealPendingScan {
		t.Errorf("meal status = %s, want pending_scan", meal.Status)
	}

	if len(pub.scanJobs) != 1 || pub.scanJobs[0] != data.ScanID {
		t.Errorf("published = %v, want [%s]", pub.scanJobs, data.ScanID)
	}
}

func TestCreateScanIdempotent(t *testing.T) {
	h, pub, _ := newTestHandler(t)

	_, first := doCreateScan(t, h, textScanRequest("oatmeal", "key-123"))
	_, second := doCreateScan(t, h, textScanRequest("oatmeal", "key-123"))

	var a, b struct {
		MealID string `json:"meal_id"`
		ScanID string `json:"scan_id"`
	}
	if err := json.Unmarshal(first.Data, &a); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(second.Data, &b); err != nil {
		t.Fatalf("decode second: %v", err)
	}

	if a.ScanID != b.ScanID || a.MealID != b.MealID {
		t.Errorf("duplicate submission created new ids: %+v vs %+v", a, b)
	}
	if len(pub.scanJobs) != 1 {
		t.Errorf("published = %d, want 1 (duplicate must not redispatch)", len(pub.scanJobs))
	}
}

func TestCreateTextScanRejectsMissingDescription(t *testing.T) {
	h, pub, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scans", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	w, env := doCreateScan(t, h, req)
	if w.Code != http.StatusBadRequest || env.Code != 10001 {
		t.Errorf("status=%d code=%d, want 400/10001", w.Code, env.Code)
	}
	if len(pub.scanJobs) != 0 {
		t.Error("rejected request must not publish")
	}
}

func TestCreatePhotoScan(t *testing.T) {
	h, pub, blobs := newTestHandler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("photo", "lunch.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("\xff\xd8\xffphotobytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/scans", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w, env := doCreateScan(t, h, req)
	if w.Code != http.StatusOK || env.Code != 0 {
		t.Fatalf("status=%d code=%d message=%q", w.Code, env.Code, env.Message)
	}

	var data struct {
		ScanID string `json:"scan_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	job, err := h.Repo.GetScanJob(context.Background(), data.ScanID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Source != scan.SourcePhoto {
		t.Errorf("job source = %s, want photo", job.Source)
	}
	if job.StoragePath != "scans/"+data.ScanID+".jpg" {
		t.Errorf("storage path = %q", job.StoragePath)
	}
	if _, ok := blobs.objects[job.StoragePath]; !ok {
		t.Errorf("photo not uploaded at %q", job.StoragePath)
	}
	if len(pub.scanJobs) != 1 {
		t.Errorf("published = %d, want 1", len(pub.scanJobs))
	}
}
