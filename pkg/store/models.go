package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type BookModel struct {
	ID              string `gorm:"primaryKey"`
	Title           string `gorm:"not null"`
	Author          string
	Description     string `gorm:"type:text"`
	FileName        string `gorm:"not null"`
	StorageProvider string `gorm:"not null;index:idx_book_storage"`
	StorageKey      string `gorm:"not null;index:idx_book_storage"`
	StorageURL      string
	FileSize        int64  `gorm:"not null"`
	TotalPages      int    `gorm:"not null;default:0"`
	UploaderID      string `gorm:"not null;index"`
	UploaderEmail   string
	IsPublic        bool           `gorm:"not null;default:false;index"`
	Tags            datatypes.JSON `gorm:"type:jsonb"`
	Status          string         `gorm:"not null"`
	ErrorMessage    string
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type PageModel struct {
	BookID string `gorm:"primaryKey"`
	Number int    `gorm:"primaryKey"`
	Text   string `gorm:"type:text"`
}

type HighlightModel struct {
	ID          string         `gorm:"primaryKey"`
	BookID      string         `gorm:"not null;index"`
	UserID      string         `gorm:"not null;index"`
	PageNumber  int            `gorm:"not null"`
	Text        string         `gorm:"type:text;not null"`
	BoundingBox datatypes.JSON `gorm:"type:jsonb"`
	Color       string         `gorm:"not null"`
	Note        string         `gorm:"type:text"`
	CreatedAt   time.Time      `gorm:"not null;index"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

type ExplanationModel struct {
	ID          string `gorm:"primaryKey"`
	HighlightID string `gorm:"not null;uniqueIndex"`
	BookID      string `gorm:"not null;index"`
	UserID      string `gorm:"not null;index"`
	Context     string `gorm:"type:text"`
	Explanation string `gorm:"type:text;not null"`
	Model       string
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type QuestionModel struct {
	ID            string    `gorm:"primaryKey"`
	ExplanationID string    `gorm:"not null;index"`
	UserID        string    `gorm:"not null"`
	Question      string    `gorm:"type:text;not null"`
	Answer        string    `gorm:"type:text;not null"`
	CreatedAt     time.Time `gorm:"not null;index"`
}
