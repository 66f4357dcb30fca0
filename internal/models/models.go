// Package models defines the persisted record types. Every couple-scoped
// record is keyed by (author, date) and written only by upsert; rows are
// never deleted, so the couple-level view is always a read-side merge of two
// independently owned streams.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studypact/backend/internal/unlock"
)

// DateFormat is the canonical day key, e.g. "2026-08-29".
const DateFormat = "2006-01-02"

// Today returns the current day key in local time.
func Today() string {
	return time.Now().Format(DateFormat)
}

// Profile binds a user to a couple with a fixed role. Role is set once by
// configuration and immutable for the session.
type Profile struct {
	ID       string      `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string      `gorm:"uniqueIndex;not null" json:"user_id"`
	CoupleID string      `gorm:"not null;index" json:"couple_id"`
	Role     unlock.Role `gorm:"not null;type:text" json:"role"`

	Email        string  `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName  string  `json:"display_name"`
	PasswordHash *string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressRecord is one member's study hours for one day, aligned to the
// subject catalog. TotalHours and Unlocked are derived at write time and
// cached: Unlocked is a snapshot of the unlock rule against TotalHours when
// the row was saved, not re-derived on read unless missing.
type ProgressRecord struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string `gorm:"not null;uniqueIndex:idx_progress_user_date,priority:1" json:"user_id"`
	CoupleID string `gorm:"not null;index" json:"couple_id"`
	Date     string `gorm:"not null;uniqueIndex:idx_progress_user_date,priority:2" json:"date"`

	Hours      Float64Array `gorm:"type:float8[]" json:"hours"`
	TotalHours float64      `gorm:"not null;default:0" json:"total_hours"`
	Unlocked   bool         `gorm:"not null;default:false" json:"unlocked"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaxDailyPhotos caps the daily photo list; new uploads are prepended and the
// list is truncated to the most recent entries.
const MaxDailyPhotos = 24

// GatedContent is one author's per-day encouragement content. The author
// always sees their own row; the partner sees it only when the gating rule
// holds, and that visibility is enforced in the repository, never left to
// clients.
type GatedContent struct {
	ID       string      `gorm:"primaryKey;type:uuid" json:"id"`
	CoupleID string      `gorm:"not null;index" json:"couple_id"`
	AuthorID string      `gorm:"not null;uniqueIndex:idx_gated_author_date,priority:1" json:"author_id"`
	Date     string      `gorm:"not null;uniqueIndex:idx_gated_author_date,priority:2" json:"date"`
	Role     unlock.Role `gorm:"not null;type:text" json:"role"`

	Message         string      `gorm:"type:text" json:"message"`
	SharedPhotoPath string      `gorm:"type:text" json:"shared_photo_path"`
	DailyPhotoPaths StringArray `gorm:"type:text[]" json:"daily_photo_paths"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpenContent is one author's per-day notes and diary. No visibility rule:
// any row is readable by either member of its couple.
type OpenContent struct {
	ID       string      `gorm:"primaryKey;type:uuid" json:"id"`
	CoupleID string      `gorm:"not null;index" json:"couple_id"`
	AuthorID string      `gorm:"not null;uniqueIndex:idx_open_author_date,priority:1" json:"author_id"`
	Date     string      `gorm:"not null;uniqueIndex:idx_open_author_date,priority:2" json:"date"`
	Role     unlock.Role `gorm:"not null;type:text" json:"role"`

	SubjectNotes StringArray `gorm:"type:text[]" json:"subject_notes"`
	DiaryText    string      `gorm:"type:text" json:"diary_text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProgressRecord) TableName() string { return "progress_records" }
func (GatedContent) TableName() string   { return "gated_contents" }
func (OpenContent) TableName() string    { return "open_contents" }

// IDs are assigned application-side so upserts behave the same under
// postgres and sqlite.

func (p *Profile) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

func (r *ProgressRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

func (g *GatedContent) BeforeCreate(*gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return nil
}

func (o *OpenContent) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}
