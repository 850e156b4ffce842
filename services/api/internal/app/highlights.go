package app

import (
	"fmt"
	"strings"

	"studyhelper/internal/util"
	"studyhelper/pkg/domain"
	"studyhelper/pkg/export"
	"studyhelper/pkg/store"
)

// HighlightPage is one page of the caller's highlights.
type HighlightPage struct {
	Highlights []domain.Highlight `json:"highlights"`
	Pagination domain.Pagination  `json:"pagination"`
}

func (a *App) ListHighlights(user domain.User, f HighlightFilter) (HighlightPage, error) {
	page, limit := domain.NormalizePage(f.Page, f.Limit)
	items, total, err := a.store.ListHighlights(store.HighlightQuery{
		UserID:     user.ID,
		BookID:     strings.TrimSpace(f.BookID),
		PageNumber: f.PageNumber,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return HighlightPage{}, fmt.Errorf("list highlights: %w", err)
	}
	if items == nil {
		items = []domain.Highlight{}
	}
	return HighlightPage{Highlights: items, Pagination: domain.NewPagination(page, limit, total)}, nil
}

// CreateHighlight saves a highlight on a book the caller may read.
func (a *App) CreateHighlight(user domain.User, in HighlightInput) (domain.Highlight, error) {
	if err := in.Validate(); err != nil {
		return domain.Highlight{}, invalid(err)
	}
	book, err := a.GetBook(user, in.BookID)
	if err != nil {
		return domain.Highlight{}, err
	}
	if book.TotalPages > 0 && in.PageNumber > book.TotalPages {
		return domain.Highlight{}, invalid(fmt.Errorf("pageNumber: must be no greater than %d", book.TotalPages))
	}
	now := a.now()
	h := domain.Highlight{
		ID:         util.NewID(),
		BookID:     book.ID,
		UserID:     user.ID,
		PageNumber: in.PageNumber,
		Text:       strings.TrimSpace(in.Text),
		Color:      strings.TrimSpace(in.Color),
		Note:       strings.TrimSpace(in.Note),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.BoundingBox != nil {
		h.BoundingBox = *in.BoundingBox
	}
	if h.Color == "" {
		h.Color = domain.DefaultHighlightColor
	}
	if err := a.store.SaveHighlight(h); err != nil {
		return domain.Highlight{}, fmt.Errorf("save highlight: %w", err)
	}
	return h, nil
}

// GetHighlight returns one of the caller's highlights.
func (a *App) GetHighlight(user domain.User, id string) (domain.Highlight, error) {
	h, ok, err := a.store.GetHighlight(strings.TrimSpace(id))
	if err != nil {
		return domain.Highlight{}, fmt.Errorf("get highlight: %w", err)
	}
	if !ok {
		return domain.Highlight{}, ErrHighlightNotFound
	}
	if user.ID == "" || h.UserID != user.ID {
		return domain.Highlight{}, ErrHighlightForbidden
	}
	return h, nil
}

func (a *App) UpdateHighlight(user domain.User, id string, in HighlightPatch) (domain.Highlight, error) {
	if err := in.Validate(); err != nil {
		return domain.Highlight{}, invalid(err)
	}
	h, err := a.GetHighlight(user, id)
	if err != nil {
		return domain.Highlight{}, err
	}
	if in.Text != nil {
		h.Text = strings.TrimSpace(*in.Text)
	}
	if in.Color != nil {
		h.Color = strings.TrimSpace(*in.Color)
	}
	if in.Note != nil {
		h.Note = strings.TrimSpace(*in.Note)
	}
	if in.BoundingBox != nil {
		h.BoundingBox = *in.BoundingBox
	}
	h.UpdatedAt = a.now()
	if err := a.store.SaveHighlight(h); err != nil {
		return domain.Highlight{}, fmt.Errorf("save highlight: %w", err)
	}
	return h, nil
}

// DeleteHighlight removes the highlight with its explanation and questions.
func (a *App) DeleteHighlight(user domain.User, id string) error {
	h, err := a.GetHighlight(user, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteHighlight(h.ID); err != nil {
		return fmt.Errorf("delete highlight: %w", err)
	}
	return nil
}

// ExportHighlights returns the caller's highlights on a book, in page order,
// joined with their explanations.
func (a *App) ExportHighlights(user domain.User, bookID string) (domain.Book, []export.Row, error) {
	book, err := a.GetBook(user, bookID)
	if err != nil {
		return domain.Book{}, nil, err
	}
	highlights, _, err := a.store.ListHighlights(store.HighlightQuery{UserID: user.ID, BookID: book.ID})
	if err != nil {
		return domain.Book{}, nil, fmt.Errorf("list highlights: %w", err)
	}
	explanations, _, err := a.store.ListExplanations(store.ExplanationQuery{UserID: user.ID, BookID: book.ID})
	if err != nil {
		return domain.Book{}, nil, fmt.Errorf("list explanations: %w", err)
	}
	byHighlight := make(map[string]domain.AIExplanation, len(explanations))
	for _, e := range explanations {
		byHighlight[e.HighlightID] = e
	}
	return book, export.Rows(highlights, byHighlight), nil
}
