package domain

import "time"

type BookStatus string

const (
	StatusQueued     BookStatus = "queued"
	StatusProcessing BookStatus = "processing"
	StatusReady      BookStatus = "ready"
	StatusFailed     BookStatus = "failed"
)

// StorageProvider names the backend that holds a book's PDF.
type StorageProvider string

const (
	ProviderLocal      StorageProvider = "local"
	ProviderMinio      StorageProvider = "minio"
	ProviderCloudinary StorageProvider = "cloudinary"
	ProviderDrive      StorageProvider = "gdrive"
)

// ParseStorageProvider accepts provider names and a few common aliases.
func ParseStorageProvider(raw string) (StorageProvider, bool) {
	switch raw {
	case "local", "filesystem":
		return ProviderLocal, true
	case "minio", "s3":
		return ProviderMinio, true
	case "cloudinary":
		return ProviderCloudinary, true
	case "gdrive", "drive", "google-drive":
		return ProviderDrive, true
	default:
		return "", false
	}
}

// StorageLocation points at the stored file. Key is a filesystem path for
// local storage, an object key for MinIO, a public ID for Cloudinary and a
// file ID for Google Drive.
type StorageLocation struct {
	Provider StorageProvider `json:"provider"`
	Key      string          `json:"key"`
	URL      string          `json:"url,omitempty"`
}

const DefaultHighlightColor = "#ffeb3b"

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Book struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Author        string          `json:"author,omitempty"`
	Description   string          `json:"description,omitempty"`
	FileName      string          `json:"fileName"`
	Storage       StorageLocation `json:"storage"`
	FileSize      int64           `json:"fileSize"`
	TotalPages    int             `json:"totalPages"`
	UploaderID    string          `json:"uploaderId"`
	UploaderEmail string          `json:"uploaderEmail,omitempty"`
	IsPublic      bool            `json:"isPublic"`
	Tags          []string        `json:"tags"`
	Status        BookStatus      `json:"status"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ReadableBy reports whether the user may read the book.
func (b Book) ReadableBy(userID string) bool {
	return b.IsPublic || (userID != "" && b.UploaderID == userID)
}

// Page is the extracted plain text of one PDF page (1-based).
type Page struct {
	BookID string `json:"bookId"`
	Number int    `json:"number"`
	Text   string `json:"text"`
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Highlight struct {
	ID          string      `json:"id"`
	BookID      string      `json:"bookId"`
	UserID      string      `json:"userId"`
	PageNumber  int         `json:"pageNumber"`
	Text        string      `json:"text"`
	BoundingBox BoundingBox `json:"boundingBox"`
	Color       string      `json:"color"`
	Note        string      `json:"note,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type AIExplanation struct {
	ID          string    `json:"id"`
	HighlightID string    `json:"highlightId"`
	BookID      string    `json:"bookId"`
	UserID      string    `json:"userId"`
	Context     string    `json:"context,omitempty"`
	Explanation string    `json:"explanation"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type AIQuestion struct {
	ID            string    `json:"id"`
	ExplanationID string    `json:"explanationId"`
	UserID        string    `json:"userId"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// NewPagination clamps page/limit and derives the page count.
func NewPagination(page, limit int, total int64) Pagination {
	page, limit = NormalizePage(page, limit)
	pages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// NormalizePage applies listing defaults: page >= 1, limit in [1, MaxPageLimit].
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// Offset returns the number of records to skip for page/limit.
func Offset(page, limit int) int {
	page, limit = NormalizePage(page, limit)
	return (page - 1) * limit
}
