package app

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"studyhelper/pkg/capture"
	"studyhelper/pkg/domain"
)

const (
	maxTitleLen       = 300
	maxTextLen        = 10000
	maxNoteLen        = 5000
	maxQuestionLen    = 2000
	maxContextLen     = 20000
	maxTags           = 20
	maxDescriptionLen = 5000
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// ListBooksInput filters the book catalogue.
type ListBooksInput struct {
	Page   int
	Limit  int
	Search string
	Tag    string
	Mine   bool
}

// StorageInput names an existing stored file.
type StorageInput struct {
	Provider string `json:"provider"`
	Key      string `json:"key"`
	URL      string `json:"url"`
}

// RegisterBookInput registers a PDF that already lives in storage.
type RegisterBookInput struct {
	Title       string       `json:"title"`
	Author      string       `json:"author"`
	Description string       `json:"description"`
	FileName    string       `json:"fileName"`
	FileSize    int64        `json:"fileSize"`
	Storage     StorageInput `json:"storage"`
	IsPublic    bool         `json:"isPublic"`
	Tags        []string     `json:"tags"`
}

func (in RegisterBookInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.By(notBlank), validation.RuneLength(1, maxTitleLen)),
		validation.Field(&in.Author, validation.RuneLength(0, maxTitleLen)),
		validation.Field(&in.Description, validation.RuneLength(0, maxDescriptionLen)),
		validation.Field(&in.FileName, validation.Required, validation.RuneLength(1, 255)),
		validation.Field(&in.FileSize, validation.Min(int64(0))),
		validation.Field(&in.Storage),
		validation.Field(&in.Tags, validation.Length(0, maxTags)),
	)
}

func (in StorageInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Provider, validation.Required, validation.By(validProvider)),
		validation.Field(&in.Key, validation.Required),
		validation.Field(&in.URL, is.URL),
	)
}

func validProvider(value any) error {
	s, _ := value.(string)
	if _, ok := domain.ParseStorageProvider(strings.ToLower(strings.TrimSpace(s))); !ok {
		return validation.NewError("validation_provider", "must be one of local, minio, cloudinary, gdrive")
	}
	return nil
}

// UpdateBookInput is a partial update; nil fields are left unchanged.
type UpdateBookInput struct {
	Title       *string   `json:"title"`
	Author      *string   `json:"author"`
	Description *string   `json:"description"`
	IsPublic    *bool     `json:"isPublic"`
	Tags        *[]string `json:"tags"`
}

func (in UpdateBookInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.By(notBlank), validation.RuneLength(1, maxTitleLen)),
		validation.Field(&in.Author, validation.RuneLength(0, maxTitleLen)),
		validation.Field(&in.Description, validation.RuneLength(0, maxDescriptionLen)),
		validation.Field(&in.Tags, validation.Length(0, maxTags)),
	)
}

// HighlightInput creates a highlight.
type HighlightInput struct {
	BookID      string              `json:"bookId"`
	PageNumber  int                 `json:"pageNumber"`
	Text        string              `json:"text"`
	BoundingBox *domain.BoundingBox `json:"boundingBox"`
	Color       string              `json:"color"`
	Note        string              `json:"note"`
}

func (in HighlightInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.BookID, validation.Required),
		validation.Field(&in.PageNumber, validation.Required, validation.Min(1)),
		validation.Field(&in.Text, validation.Required, validation.By(notBlank), validation.RuneLength(1, maxTextLen)),
		validation.Field(&in.BoundingBox, validation.By(validBox)),
		validation.Field(&in.Color, validation.Match(hexColor)),
		validation.Field(&in.Note, validation.RuneLength(0, maxNoteLen)),
	)
}

// HighlightPatch updates a highlight; nil fields are left unchanged.
type HighlightPatch struct {
	Text        *string             `json:"text"`
	Color       *string             `json:"color"`
	Note        *string             `json:"note"`
	BoundingBox *domain.BoundingBox `json:"boundingBox"`
}

func (in HighlightPatch) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Text, validation.By(notBlank), validation.RuneLength(1, maxTextLen)),
		validation.Field(&in.Color, validation.NilOrNotEmpty, validation.Match(hexColor)),
		validation.Field(&in.Note, validation.RuneLength(0, maxNoteLen)),
		validation.Field(&in.BoundingBox, validation.By(validBox)),
	)
}

// notBlank rejects whitespace-only strings and set string pointers. Empty
// plain strings are left to validation.Required.
func notBlank(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	default:
		return nil
	}
	if strings.TrimSpace(s) == "" {
		return validation.ErrRequired
	}
	return nil
}

func validBox(value any) error {
	box, _ := value.(*domain.BoundingBox)
	if box == nil {
		return nil
	}
	if box.Width < 0 || box.Height < 0 {
		return validation.NewError("validation_bounding_box", "width and height must not be negative")
	}
	return nil
}

// HighlightFilter filters the caller's highlights.
type HighlightFilter struct {
	BookID     string
	PageNumber int
	Page       int
	Limit      int
}

// ExplainInput asks for an explanation of an existing highlight, or of an
// ad-hoc selection which is saved as a new highlight first.
type ExplainInput struct {
	HighlightID string              `json:"highlightId"`
	BookID      string              `json:"bookId"`
	PageNumber  int                 `json:"pageNumber"`
	Text        string              `json:"text"`
	BoundingBox *domain.BoundingBox `json:"boundingBox"`
	Context     string              `json:"context"`
	Regenerate  bool                `json:"regenerate"`
}

func (in ExplainInput) Validate() error {
	adHoc := strings.TrimSpace(in.HighlightID) == ""
	return validation.ValidateStruct(&in,
		validation.Field(&in.BookID, validation.When(adHoc, validation.Required)),
		validation.Field(&in.PageNumber, validation.When(adHoc, validation.Required, validation.Min(1))),
		validation.Field(&in.Text, validation.When(adHoc, validation.Required), validation.RuneLength(0, maxTextLen)),
		validation.Field(&in.BoundingBox, validation.By(validBox)),
		validation.Field(&in.Context, validation.RuneLength(0, maxContextLen)),
	)
}

// ExplanationFilter filters the caller's explanations.
type ExplanationFilter struct {
	BookID      string
	HighlightID string
	Page        int
	Limit       int
}

// QuestionInput is a follow-up question about an explanation.
type QuestionInput struct {
	ExplanationID string `json:"explanationId"`
	Question      string `json:"question"`
}

func (in QuestionInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ExplanationID, validation.Required),
		validation.Field(&in.Question, validation.Required, validation.By(notBlank), validation.RuneLength(1, maxQuestionLen)),
	)
}

// ExtractInput carries a viewer capture and the optional drag selection.
type ExtractInput struct {
	Image     string          `json:"image"`
	Selection *capture.Region `json:"selection"`
	Scale     float64         `json:"scale"`
}

func (in ExtractInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Image, validation.Required),
		validation.Field(&in.Scale, validation.Min(0.0)),
	)
}
