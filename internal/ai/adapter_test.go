package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedDetector struct {
	// errs is consumed one per call; nil means succeed with result
	errs   []error
	result DetectionResult
	calls  []time.Time
}

func (d *scriptedDetector) next() error {
	n := len(d.calls)
	d.calls = append(d.calls, time.Now())
	if n < len(d.errs) {
		return d.errs[n]
	}
	return nil
}

func (d *scriptedDetector) DetectFromImage(ctx context.Context, data []byte, mimeType string) (DetectionResult, error) {
	_ = ctx
	_ = data
	_ = mimeType
	if err := d.next(); err != nil {
		return DetectionResult{}, err
	}
	return d.result, nil
}

func (d *scriptedDetector) DetectFromText(ctx context.Context, description string) (DetectionResult, error) {
	_ = ctx
	_ = description
	if err := d.next(); err != nil {
		return DetectionResult{}, err
	}
	return d.result, nil
}

type memCache struct {
	m    map[string]DetectionResult
	gets int
	sets int
}

func newMemCache() *memCache { return &memCache{m: map[string]DetectionResult{}} }

func (c *memCache) GetDetection(ctx context.Context, key string) (DetectionResult, bool) {
	_ = ctx
	c.gets++
	res, ok := c.m[key]
	return res, ok
}

func (c *memCache) SetDetection(ctx context.Context, key string, res DetectionResult) {
	_ = ctx
	c.sets++
	c.m[key] = res
}

func TestRetryTransientThenSuccess(t *testing.T) {
	det := &scriptedDetector{
		errs:   []error{&StatusError{Op: "detect", Code: 500}, &StatusError{Op: "detect", Code: 429}},
		result: DetectionResult{DishTitle: "Toast", Ingredients: []DetectedIngredient{{Name: "Toast"}}},
	}
	a := NewAdapter(det, nil, nil)
	a.BackoffBase = 30 * time.Millisecond

	res, err := a.DetectMealFromText(context.Background(), "toast")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.DishTitle != "Toast" {
		t.Errorf("dish title = %q", res.DishTitle)
	}
	if len(det.calls) != 3 {
		t.Fatalf("attempts = %d, want 3", len(det.calls))
	}

	gap1 := det.calls[1].Sub(det.calls[0])
	gap2 := det.calls[2].Sub(det.calls[1])
	if gap2 <= gap1 {
		t.Errorf("backoff not increasing: %v then %v", gap1, gap2)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	boom := &StatusError{Op: "detect", Code: 503}
	det := &scriptedDetector{errs: []error{boom, boom, boom, boom}}
	a := NewAdapter(det, nil, nil)
	a.BackoffBase = time.Millisecond

	_, err := a.DetectMealFromText(context.Background(), "toast")
	if err == nil {
		t.Fatal("expected error after budget exhausted")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 503 {
		t.Errorf("err = %v, want last upstream status error", err)
	}
	if len(det.calls) != 3 {
		t.Errorf("attempts = %d, want exactly 3", len(det.calls))
	}
}

func TestNoRetryOnClientErrors(t *testing.T) {
	for _, code := range []int{400, 401} {
		det := &scriptedDetector{errs: []error{&StatusError{Op: "detect", Code: code}}}
		a := NewAdapter(det, nil, nil)
		a.BackoffBase = time.Millisecond

		if _, err := a.DetectMealFromText(context.Background(), "toast"); err == nil {
			t.Fatalf("code %d: expected error", code)
		}
		if len(det.calls) != 1 {
			t.Errorf("code %d: attempts = %d, want 1", code, len(det.calls))
		}
	}
}

func TestDetectPhotoCacheHit(t *testing.T) {
	det := &scriptedDetector{result: DetectionResult{DishTitle: "Pizza", Ingredients: []DetectedIngredient{{Name: "Pizza"}}}}
	cache := newMemCache()
	a := NewAdapter(det, nil, cache)
	a.BackoffBase = time.Millisecond

	photo := []byte("same bytes both times")
	if _, err := a.DetectMealFromPhoto(context.Background(), photo, "image/jpeg"); err != nil {
		t.Fatalf("first detect: %v", err)
	}
	if _, err := a.DetectMealFromPhoto(context.Background(), photo, "image/jpeg"); err != nil {
		t.Fatalf("second detect: %v", err)
	}

	if len(det.calls) != 1 {
		t.Errorf("detector calls = %d, want 1 (second hit served from cache)", len(det.calls))
	}
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1", cache.sets)
	}
}

func TestSanitizeMissingIngredientList(t *testing.T) {
	det := &scriptedDetector{result: DetectionResult{DishTitle: "Something", Confidence: 0.9}}
	a := NewAdapter(det, nil, nil)
	a.BackoffBase = time.Millisecond

	res, err := a.DetectMealFromText(context.Background(), "??")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.Ingredients == nil || len(res.Ingredients) != 0 {
		t.Errorf("ingredients = %#v, want empty non-nil slice", res.Ingredients)
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %v, want 0 for degraded result", res.Confidence)
	}
}

func TestSanitizeSynthesizesDishTitle(t *testing.T) {
	det := &scriptedDetector{result: DetectionResult{
		Ingredients: []DetectedIngredient{{Name: "Banana"}},
		Confidence:  0.7,
	}}
	a := NewAdapter(det, nil, nil)
	a.BackoffBase = time.Millisecond

	res, err := a.DetectMealFromText(context.Background(), "a banana")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.DishTitle != "Banana" {
		t.Errorf("dish title = %q, want lone ingredient name", res.DishTitle)
	}

	det = &scriptedDetector{result: DetectionResult{
		Ingredients: []DetectedIngredient{{Name: "Rice"}, {Name: "Beans"}},
	}}
	a = NewAdapter(det, nil, nil)
	a.BackoffBase = time.Millisecond

	res, err = a.DetectMealFromText(context.Background(), "rice and beans")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.DishTitle != "Mixed meal" {
		t.Errorf("dish title = %q, want Mixed meal", res.DishTitle)
	}
}

type scriptedGenerator struct {
	errs  []error
	data  []byte
	calls int
}

func (g *scriptedGenerator) GenerateImage(ctx context.Context, displayName string) ([]byte, error) {
	_ = ctx
	_ = displayName
	n := g.calls
	g.calls++
	if n < len(g.errs) {
		return nil, g.errs[n]
	}
	return g.data, nil
}

func TestGenerateImageRetries(t *testing.T) {
	gen := &scriptedGenerator{
		errs: []error{&StatusError{Op: "generate", Code: 500}},
		data: []byte("imagebytes"),
	}
	a := NewAdapter(nil, gen, nil)
	a.BackoffBase = time.Millisecond

	data, err := a.GenerateIngredientImage(context.Background(), "Mozzarella cheese")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(data) != "imagebytes" {
		t.Errorf("data = %q", data)
	}
	if gen.calls != 2 {
		t.Errorf("calls = %d, want 2", gen.calls)
	}
}
