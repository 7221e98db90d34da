package scan

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ScanJobStatus string

const (
	ScanQueued     ScanJobStatus = "queued"
	ScanProcessing ScanJobStatus = "processing"
	ScanDone       ScanJobStatus = "done"
	ScanFailed     ScanJobStatus = "failed"
	ScanCancelled  ScanJobStatus = "cancelled"
)

type ScanSource string

const (
	SourcePhoto ScanSource = "photo"
	SourceText  ScanSource = "text"
)

// ScanJob is one asynchronous enrichment request. Rows are never deleted;
// terminal jobs stay behind as an audit trail.
type ScanJob struct {
	ID     string        `gorm:"primaryKey;size:26"` // ULID length
	Status ScanJobStatus `gorm:"type:varchar(16);index;not null"`
	Source ScanSource    `gorm:"type:varchar(8);not null"`

	// photo jobs reference the uploaded blob, text jobs carry the description
	StoragePath     string `gorm:"size:255"`
	TextDescription string `gorm:"type:text"`

	MealID string `gorm:"size:26;index"`
	UserID uint64 `gorm:"index;not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_scan_idempo,unique"`

	Attempts int
	Error    string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ScanJob) TableName() string { return "scan_jobs" }

type MealStatus string

const (
	MealPendingScan MealStatus = "pending_scan"
	MealReady       MealStatus = "ready"
	MealCancelled   MealStatus = "cancelled"
)

type Macros struct {
	Protein float64 `json:"p"`
	Carbs   float64 `json:"c"`
	Fat     float64 `json:"f"`
}

// MealIngredient is one enriched row of a meal's ingredient list. ID and
// ImageURL are filled in by the identity resolver; the rest comes from the
// enrichment service.
type MealIngredient struct {
	ID               string  `json:"id,omitempty"`
	Name             string  `json:"name"`
	PortionText      string  `json:"portion_text,omitempty"`
	EstimatedWeightG float64 `json:"estimated_weight_g"`
	Calories         float64 `json:"calories"`
	Macros           Macros  `json:"macros"`
	Notes            string  `json:"notes,omitempty"`
	ImageURL         string  `json:"image_url,omitempty"`
}

// MealIngredients is stored as a single JSON column.
type MealIngredients []MealIngredient

func (m MealIngredients) Value() (driver.Value, error) {
	if m == nil {
		m = MealIngredients{}
	}
	return json.Marshal(m)
}

func (m *MealIngredients) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("meal ingredients: unsupported scan type %T", src)
	}
	if len(b) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(b, m)
}

type MealLog struct {
	ID     string     `gorm:"primaryKey;size:26"` // ULID length
	UserID uint64     `gorm:"index;not null"`
	Status MealStatus `gorm:"type:varchar(16);index;not null"`

	DishTitle   string          `gorm:"size:255"`
	Ingredients MealIngredients `gorm:"type:text"`

	TotalCalories int
	Protein       float64
	Carbs         float64
	Fat           float64
	Confidence    float64

	ScanID string `gorm:"size:26;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (MealLog) TableName() string { return "meal_logs" }

type ImageStatus string

const (
	ImageQueued     ImageStatus = "queued"
	ImageGenerating ImageStatus = "generating"
	ImageReady      ImageStatus = "ready"
	ImageFailed     ImageStatus = "failed"
)

// Ingredient is the canonical identity record for a food name. ID is a pure
// function of the canonicalized name, so concurrent scans naming the same food
// converge on one row.
type Ingredient struct {
	ID            string      `gorm:"primaryKey;size:120"`
	CanonicalName string      `gorm:"size:255;index;not null"`
	DisplayName   string      `gorm:"size:255;not null"`
	Slug          string      `gorm:"size:255;not null"`
	StoragePath   string      `gorm:"size:255"`
	ImageURL      string      `gorm:"size:512"`
	ImageStatus   ImageStatus `gorm:"type:varchar(16);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Ingredient) TableName() string { return "ingredients" }

// ImageJob tracks thumbnail generation for one ingredient identity. Keyed by
// the ingredient id, so concurrent enqueues collapse onto a single row.
type ImageJob struct {
	IngredientID string      `gorm:"primaryKey;size:120"`
	Status       ImageStatus `gorm:"type:varchar(16);index;not null"`
	Attempts     int
	Error        string `gorm:"type:text"`

	UpdatedAt time.Time
}

func (ImageJob) TableName() string { return "image_jobs" }
