package scan

import (
	"context"
	"testing"
)

func TestResolveSameNameOnce(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	pub := &fakePublisher{}
	r := NewResolver(repo, pub)
	ctx := context.Background()

	// same ingredient surfacing from two different scans inside the
	// generation window
	id1, err := r.Resolve(ctx, "Mozzarella cheese")
	if err != nil {
		t.Fatalf("resolve 1: %v", err)
	}
	id2, err := r.Resolve(ctx, "mozzarella   CHEESE")
	if err != nil {
		t.Fatalf("resolve 2: %v", err)
	}

	if id1 == "" || id1 != id2 {
		t.Fatalf("ids differ: %q vs %q", id1, id2)
	}

	var ingCount, jobCount int64
	db.Model(&Ingredient{}).Count(&ingCount)
	db.Model(&ImageJob{}).Count(&jobCount)
	if ingCount != 1 {
		t.Errorf("ingredient rows = %d, want 1", ingCount)
	}
	if jobCount != 1 {
		t.Errorf("image job rows = %d, want 1", jobCount)
	}
	if len(pub.imageJobs) != 1 {
		t.Errorf("published image jobs = %d, want 1", len(pub.imageJobs))
	}
}

func TestResolveUncanonicalizableName(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	pub := &fakePublisher{}
	r := NewResolver(repo, pub)

	id, err := r.Resolve(context.Background(), "🍕🍕")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty for uncanonicalizable name", id)
	}

	var count int64
	db.Model(&Ingredient{}).Count(&count)
	if count != 0 {
		t.Errorf("ingredient rows = %d, want 0", count)
	}
	if len(pub.imageJobs) != 0 {
		t.Errorf("published image jobs = %d, want 0", len(pub.imageJobs))
	}
}

func TestResolvePublishesOnlyOnRequeue(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	pub := &fakePublisher{}
	r := NewResolver(repo, pub)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "Toast")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// thumbnail completes
	if _, err := repo.ClaimImageJob(ctx, id); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.FinishImageJob(ctx, id, "https://blobs.test/ingredients/toast.jpg?token=t", "ingredients/toast.jpg"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := r.Resolve(ctx, "toast"); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if len(pub.imageJobs) != 1 {
		t.Fatalf("published image jobs = %d, want 1 (no regeneration for ready image)", len(pub.imageJobs))
	}
}
