package store

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"studyhelper/pkg/domain"
)

type pageKey struct {
	bookID string
	number int
}

// MemoryStore keeps records in-process for local development and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	books        map[string]domain.Book
	pages        map[pageKey]domain.Page
	highlights   map[string]domain.Highlight
	explanations map[string]domain.AIExplanation
	byHighlight  map[string]string // highlight ID -> explanation ID
	questions    map[string][]domain.AIQuestion
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:        make(map[string]domain.Book),
		pages:        make(map[pageKey]domain.Page),
		highlights:   make(map[string]domain.Highlight),
		explanations: make(map[string]domain.AIExplanation),
		byHighlight:  make(map[string]string),
		questions:    make(map[string][]domain.AIQuestion),
	}
}

func (m *MemoryStore) Close() error { return nil }

// SaveBook stores or replaces a book record.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.Tags = NormalizeTags(b.Tags)
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// ListBooks returns visible books newest first.
func (m *MemoryStore) ListBooks(q BookQuery) ([]domain.Book, int64, error) {
	q = q.normalized()
	m.mu.RLock()
	res := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		if q.matches(b) {
			res = append(res, b)
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(res, func(a, b domain.Book) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return paginate(res, q.Page, q.Limit), int64(len(res)), nil
}

// SetBookStatus updates status and optional error message.
func (m *MemoryStore) SetBookStatus(id string, status domain.BookStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok {
		return nil
	}
	book.Status = status
	book.ErrorMessage = errMsg
	book.UpdatedAt = time.Now().UTC()
	m.books[id] = book
	return nil
}

func (m *MemoryStore) SetBookPages(id string, totalPages int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok {
		return nil
	}
	book.TotalPages = totalPages
	book.UpdatedAt = time.Now().UTC()
	m.books[id] = book
	return nil
}

func (m *MemoryStore) CountBooksAt(loc domain.StorageLocation) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, b := range m.books {
		if b.Storage.Provider == loc.Provider && b.Storage.Key == loc.Key {
			n++
		}
	}
	return n, nil
}

// DeleteBook removes a book and all records hanging off it.
func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	for key := range m.pages {
		if key.bookID == id {
			delete(m.pages, key)
		}
	}
	for hid, h := range m.highlights {
		if h.BookID == id {
			m.deleteHighlightLocked(hid)
		}
	}
	for eid, e := range m.explanations {
		if e.BookID == id {
			m.deleteExplanationLocked(eid)
		}
	}
	return nil
}

func (m *MemoryStore) ReplacePages(bookID string, pages []domain.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.pages {
		if key.bookID == bookID {
			delete(m.pages, key)
		}
	}
	for _, page := range pages {
		page.BookID = bookID
		m.pages[pageKey{bookID: bookID, number: page.Number}] = page
	}
	return nil
}

func (m *MemoryStore) GetPage(bookID string, number int) (domain.Page, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	page, ok := m.pages[pageKey{bookID: bookID, number: number}]
	return page, ok, nil
}

func (m *MemoryStore) SaveHighlight(h domain.Highlight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highlights[h.ID] = h
	return nil
}

func (m *MemoryStore) GetHighlight(id string) (domain.Highlight, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.highlights[id]
	return h, ok, nil
}

// ListHighlights returns matching highlights ordered by page then creation.
func (m *MemoryStore) ListHighlights(q HighlightQuery) ([]domain.Highlight, int64, error) {
	m.mu.RLock()
	res := make([]domain.Highlight, 0)
	for _, h := range m.highlights {
		if q.matches(h) {
			res = append(res, h)
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(res, func(a, b domain.Highlight) int {
		if a.PageNumber != b.PageNumber {
			return a.PageNumber - b.PageNumber
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return paginate(res, q.Page, q.Limit), int64(len(res)), nil
}

func (m *MemoryStore) DeleteHighlight(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteHighlightLocked(id)
	return nil
}

func (m *MemoryStore) deleteHighlightLocked(id string) {
	delete(m.highlights, id)
	if eid, ok := m.byHighlight[id]; ok {
		m.deleteExplanationLocked(eid)
	}
}

func (m *MemoryStore) deleteExplanationLocked(id string) {
	if e, ok := m.explanations[id]; ok {
		delete(m.byHighlight, e.HighlightID)
	}
	delete(m.explanations, id)
	delete(m.questions, id)
}

// SaveExplanation stores or replaces an explanation; a highlight keeps at most one.
func (m *MemoryStore) SaveExplanation(e domain.AIExplanation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.byHighlight[e.HighlightID]; ok && prev != e.ID {
		return ErrConflict
	}
	m.explanations[e.ID] = e
	m.byHighlight[e.HighlightID] = e.ID
	return nil
}

func (m *MemoryStore) GetExplanation(id string) (domain.AIExplanation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.explanations[id]
	return e, ok, nil
}

func (m *MemoryStore) GetExplanationByHighlight(highlightID string) (domain.AIExplanation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byHighlight[highlightID]
	if !ok {
		return domain.AIExplanation{}, false, nil
	}
	e, ok := m.explanations[id]
	return e, ok, nil
}

// ListExplanations returns matching explanations newest first.
func (m *MemoryStore) ListExplanations(q ExplanationQuery) ([]domain.AIExplanation, int64, error) {
	m.mu.RLock()
	res := make([]domain.AIExplanation, 0)
	for _, e := range m.explanations {
		if q.matches(e) {
			res = append(res, e)
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(res, func(a, b domain.AIExplanation) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return paginate(res, q.Page, q.Limit), int64(len(res)), nil
}

func (m *MemoryStore) SaveQuestion(q domain.AIQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ExplanationID] = append(m.questions[q.ExplanationID], q)
	return nil
}

func (m *MemoryStore) ListQuestions(explanationID string, limit int) ([]domain.AIQuestion, error) {
	m.mu.RLock()
	items := slices.Clone(m.questions[explanationID])
	m.mu.RUnlock()
	slices.SortStableFunc(items, func(a, b domain.AIQuestion) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	if items == nil {
		items = []domain.AIQuestion{}
	}
	return items, nil
}
