package scan

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/snapbite/mealscan/internal/ai"
)

var testDBSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:scantest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&MealLog{}, &ScanJob{}, &Ingredient{}, &ImageJob{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakeEnricher struct {
	result     ai.DetectionResult
	err        error
	photoCalls int
	textCalls  int
}

func (f *fakeEnricher) DetectMealFromPhoto(ctx context.Context, data []byte, mimeType string) (ai.DetectionResult, error) {
	_ = ctx
	_ = data
	_ = mimeType
	f.photoCalls++
	return f.result, f.err
}

func (f *fakeEnricher) DetectMealFromText(ctx context.Context, description string) (ai.DetectionResult, error) {
	_ = ctx
	_ = description
	f.textCalls++
	return f.result, f.err
}

type fakePublisher struct {
	imageJobs []string
	scanJobs  []string
}

func (f *fakePublisher) PublishImageJob(ctx context.Context, ingredientID string) error {
	_ = ctx
	f.imageJobs = append(f.imageJobs, ingredientID)
	return nil
}

func (f *fakePublisher) PublishScanJob(ctx context.Context, jobID string) error {
	_ = ctx
	f.scanJobs = append(f.scanJobs, jobID)
	return nil
}

type fakeBlobStore struct {
	objects map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
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

type fakeGenerator struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeGenerator) GenerateIngredientImage(ctx context.Context, displayName string) ([]byte, error) {
	_ = ctx
	_ = displayName
	f.calls++
	return f.data, f.err
}
