package store

import (
	"errors"
	"strings"

	"studyhelper/pkg/domain"
)

// ErrConflict reports a write that collides with a unique constraint, such
// as a second explanation for the same highlight.
var ErrConflict = errors.New("record conflicts with an existing one")

// Store defines persistence operations for books, pages, highlights and AI
// records. Get methods report a missing record with ok=false and a nil error.
// List methods apply Offset/Limit only when Limit is positive.
type Store interface {
	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks(BookQuery) ([]domain.Book, int64, error)
	SetBookStatus(id string, status domain.BookStatus, errMsg string) error
	SetBookPages(id string, totalPages int) error
	// CountBooksAt counts books whose file lives at the given provider and key.
	CountBooksAt(loc domain.StorageLocation) (int64, error)
	// DeleteBook removes the book with its pages, highlights, explanations and questions.
	DeleteBook(id string) error

	// pages
	ReplacePages(bookID string, pages []domain.Page) error
	GetPage(bookID string, number int) (domain.Page, bool, error)

	// highlights
	SaveHighlight(domain.Highlight) error
	GetHighlight(id string) (domain.Highlight, bool, error)
	ListHighlights(HighlightQuery) ([]domain.Highlight, int64, error)
	// DeleteHighlight removes the highlight, its explanation and that explanation's questions.
	DeleteHighlight(id string) error

	// explanations and follow-up questions
	// SaveExplanation returns ErrConflict when another explanation already
	// exists for the same highlight.
	SaveExplanation(domain.AIExplanation) error
	GetExplanation(id string) (domain.AIExplanation, bool, error)
	GetExplanationByHighlight(highlightID string) (domain.AIExplanation, bool, error)
	ListExplanations(ExplanationQuery) ([]domain.AIExplanation, int64, error)
	SaveQuestion(domain.AIQuestion) error
	// ListQuestions returns questions oldest first. With limit > 0 only the
	// latest limit questions are returned, still oldest first.
	ListQuestions(explanationID string, limit int) ([]domain.AIQuestion, error)

	Close() error
}

// BookQuery filters a book listing. With ViewerID set the listing holds public
// books plus the viewer's own (only the viewer's with OnlyMine); without a
// viewer only public books are listed.
type BookQuery struct {
	Page       int
	Limit      int
	Search     string
	Tag        string
	UploaderID string
	ViewerID   string
	OnlyMine   bool
}

// HighlightQuery filters a highlight listing.
type HighlightQuery struct {
	UserID     string
	BookID     string
	PageNumber int
	Page       int
	Limit      int
}

// ExplanationQuery filters an explanation listing.
type ExplanationQuery struct {
	UserID      string
	BookID      string
	HighlightID string
	Page        int
	Limit       int
}

func (q BookQuery) normalized() BookQuery {
	q.Search = strings.TrimSpace(q.Search)
	q.Tag = strings.TrimSpace(q.Tag)
	q.UploaderID = strings.TrimSpace(q.UploaderID)
	q.ViewerID = strings.TrimSpace(q.ViewerID)
	return q
}

// visibleTo applies the listing visibility rules to one book.
func (q BookQuery) visibleTo(b domain.Book) bool {
	if q.ViewerID == "" {
		return b.IsPublic
	}
	if q.OnlyMine {
		return b.UploaderID == q.ViewerID
	}
	return b.IsPublic || b.UploaderID == q.ViewerID
}

func (q BookQuery) matches(b domain.Book) bool {
	if !q.visibleTo(b) {
		return false
	}
	if q.UploaderID != "" && b.UploaderID != q.UploaderID {
		return false
	}
	if q.Tag != "" && !containsString(b.Tags, q.Tag) {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(b.Title), needle) && !strings.Contains(strings.ToLower(b.Author), needle) {
			return false
		}
	}
	return true
}

func (q HighlightQuery) matches(h domain.Highlight) bool {
	if q.UserID != "" && h.UserID != q.UserID {
		return false
	}
	if q.BookID != "" && h.BookID != q.BookID {
		return false
	}
	if q.PageNumber > 0 && h.PageNumber != q.PageNumber {
		return false
	}
	return true
}

func (q ExplanationQuery) matches(e domain.AIExplanation) bool {
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.BookID != "" && e.BookID != q.BookID {
		return false
	}
	if q.HighlightID != "" && e.HighlightID != q.HighlightID {
		return false
	}
	return true
}

// window returns offset and limit for a listing; limit 0 means unbounded.
func window(page, limit int) (int, int) {
	if limit <= 0 {
		return 0, 0
	}
	return domain.Offset(page, limit), min(limit, domain.MaxPageLimit)
}

// paginate slices items for page/limit.
func paginate[T any](items []T, page, limit int) []T {
	offset, limit := window(page, limit)
	if limit == 0 {
		return items
	}
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func containsString(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

// NormalizeTags trims, drops empties and de-duplicates tags preserving order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
