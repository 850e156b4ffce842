package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"studyhelper/pkg/domain"
)

func seedBooks(t *testing.T, s *MemoryStore) {
	t.Helper()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	books := []domain.Book{
		{ID: "b1", Title: "Linear Algebra", Author: "Strang", UploaderID: "alice", IsPublic: true, Tags: []string{"math"}},
		{ID: "b2", Title: "Private Notes", Author: "Alice", UploaderID: "alice", Tags: []string{"math", "notes"}},
		{ID: "b3", Title: "Organic Chemistry", Author: "Clayden", UploaderID: "bob", IsPublic: true, Tags: []string{"chem"}},
		{ID: "b4", Title: "Bob's Diary", UploaderID: "bob"},
	}
	for i, b := range books {
		b.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := s.SaveBook(b); err != nil {
			t.Fatalf("save book: %v", err)
		}
	}
}

func bookIDs(books []domain.Book) []string {
	ids := make([]string, 0, len(books))
	for _, b := range books {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestMemoryStoreListBooksVisibility(t *testing.T) {
	s := NewMemoryStore()
	seedBooks(t, s)

	tests := []struct {
		name  string
		query BookQuery
		want  string
	}{
		{name: "anonymous sees public", query: BookQuery{}, want: "[b3 b1]"},
		{name: "viewer sees public plus own", query: BookQuery{ViewerID: "alice"}, want: "[b3 b2 b1]"},
		{name: "only mine", query: BookQuery{ViewerID: "bob", OnlyMine: true}, want: "[b4 b3]"},
		{name: "tag filter", query: BookQuery{ViewerID: "alice", Tag: "math"}, want: "[b2 b1]"},
		{name: "search title case-insensitive", query: BookQuery{Search: "chem"}, want: "[b3]"},
		{name: "search author", query: BookQuery{ViewerID: "alice", Search: "strang"}, want: "[b1]"},
		{name: "paged", query: BookQuery{ViewerID: "alice", Page: 2, Limit: 2}, want: "[b1]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			books, _, err := s.ListBooks(tc.query)
			if err != nil {
				t.Fatalf("list books: %v", err)
			}
			if got := fmt.Sprint(bookIDs(books)); got != tc.want {
				t.Fatalf("books = %s, want %s", got, tc.want)
			}
		})
	}

	_, total, _ := s.ListBooks(BookQuery{ViewerID: "alice", Page: 2, Limit: 2})
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
}

func TestMemoryStoreDeleteBookCascades(t *testing.T) {
	s := NewMemoryStore()
	seedBooks(t, s)
	now := time.Now().UTC()
	_ = s.ReplacePages("b1", []domain.Page{{Number: 1, Text: "one"}})
	_ = s.SaveHighlight(domain.Highlight{ID: "h1", BookID: "b1", UserID: "alice", PageNumber: 1, CreatedAt: now})
	_ = s.SaveHighlight(domain.Highlight{ID: "h2", BookID: "b3", UserID: "alice", PageNumber: 1, CreatedAt: now})
	_ = s.SaveExplanation(domain.AIExplanation{ID: "e1", HighlightID: "h1", BookID: "b1", UserID: "alice", CreatedAt: now})
	_ = s.SaveQuestion(domain.AIQuestion{ID: "q1", ExplanationID: "e1", CreatedAt: now})

	if err := s.DeleteBook("b1"); err != nil {
		t.Fatalf("delete book: %v", err)
	}
	if _, ok, _ := s.GetBook("b1"); ok {
		t.Fatalf("book should be gone")
	}
	if _, ok, _ := s.GetPage("b1", 1); ok {
		t.Fatalf("pages should be gone")
	}
	if _, ok, _ := s.GetHighlight("h1"); ok {
		t.Fatalf("highlight should be gone")
	}
	if _, ok, _ := s.GetExplanation("e1"); ok {
		t.Fatalf("explanation should be gone")
	}
	if qs, _ := s.ListQuestions("e1", 0); len(qs) != 0 {
		t.Fatalf("questions should be gone, got %d", len(qs))
	}
	if _, ok, _ := s.GetHighlight("h2"); !ok {
		t.Fatalf("highlights of other books must survive")
	}
}

func TestMemoryStoreDeleteHighlightCascades(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	_ = s.SaveHighlight(domain.Highlight{ID: "h1", BookID: "b1", UserID: "alice", PageNumber: 1, CreatedAt: now})
	_ = s.SaveExplanation(domain.AIExplanation{ID: "e1", HighlightID: "h1", BookID: "b1", UserID: "alice", CreatedAt: now})
	_ = s.SaveQuestion(domain.AIQuestion{ID: "q1", ExplanationID: "e1", CreatedAt: now})

	if err := s.DeleteHighlight("h1"); err != nil {
		t.Fatalf("delete highlight: %v", err)
	}
	if _, ok, _ := s.GetExplanationByHighlight("h1"); ok {
		t.Fatalf("explanation should be gone")
	}
	if qs, _ := s.ListQuestions("e1", 0); len(qs) != 0 {
		t.Fatalf("questions should be gone")
	}
}

func TestMemoryStoreHighlightOrderingAndFilters(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	_ = s.SaveHighlight(domain.Highlight{ID: "late-p1", BookID: "b1", UserID: "u", PageNumber: 1, CreatedAt: base.Add(time.Minute)})
	_ = s.SaveHighlight(domain.Highlight{ID: "p2", BookID: "b1", UserID: "u", PageNumber: 2, CreatedAt: base})
	_ = s.SaveHighlight(domain.Highlight{ID: "early-p1", BookID: "b1", UserID: "u", PageNumber: 1, CreatedAt: base})
	_ = s.SaveHighlight(domain.Highlight{ID: "other-user", BookID: "b1", UserID: "v", PageNumber: 1, CreatedAt: base})

	items, total, err := s.ListHighlights(HighlightQuery{UserID: "u", BookID: "b1"})
	if err != nil {
		t.Fatalf("list highlights: %v", err)
	}
	if total != 3 || items[0].ID != "early-p1" || items[1].ID != "late-p1" || items[2].ID != "p2" {
		t.Fatalf("unexpected highlight order: %+v", items)
	}
	items, _, _ = s.ListHighlights(HighlightQuery{UserID: "u", PageNumber: 2})
	if len(items) != 1 || items[0].ID != "p2" {
		t.Fatalf("page filter = %+v", items)
	}
}

func TestMemoryStoreExplanationUniquePerHighlight(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.SaveExplanation(domain.AIExplanation{ID: "e1", HighlightID: "h1", Explanation: "old", CreatedAt: now}); err != nil {
		t.Fatalf("save explanation: %v", err)
	}
	err := s.SaveExplanation(domain.AIExplanation{ID: "e2", HighlightID: "h1", Explanation: "other", CreatedAt: now})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second explanation for highlight err = %v, want ErrConflict", err)
	}
	if err := s.SaveExplanation(domain.AIExplanation{ID: "e1", HighlightID: "h1", Explanation: "new", CreatedAt: now}); err != nil {
		t.Fatalf("replace explanation: %v", err)
	}

	got, ok, _ := s.GetExplanationByHighlight("h1")
	if !ok || got.ID != "e1" || got.Explanation != "new" {
		t.Fatalf("explanation by highlight = %+v, %v", got, ok)
	}
	if _, ok, _ := s.GetExplanation("e2"); ok {
		t.Fatalf("conflicting explanation should not be stored")
	}
}

func TestMemoryStoreCountBooksAt(t *testing.T) {
	s := NewMemoryStore()
	loc := domain.StorageLocation{Provider: domain.ProviderLocal, Key: "books/a.pdf"}
	_ = s.SaveBook(domain.Book{ID: "b1", Storage: loc})
	_ = s.SaveBook(domain.Book{ID: "b2", Storage: loc})
	_ = s.SaveBook(domain.Book{ID: "b3", Storage: domain.StorageLocation{Provider: loc.Provider, Key: "books/b.pdf"}})

	n, err := s.CountBooksAt(loc)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v; want 2", n, err)
	}
	_ = s.DeleteBook("b1")
	if n, _ := s.CountBooksAt(loc); n != 1 {
		t.Fatalf("count after delete = %d, want 1", n)
	}
}

func TestMemoryStoreListQuestionsHistoryLimit(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i := range 7 {
		_ = s.SaveQuestion(domain.AIQuestion{ID: fmt.Sprintf("q%d", i), ExplanationID: "e1", CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}
	items, err := s.ListQuestions("e1", 5)
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(items) != 5 || items[0].ID != "q2" || items[4].ID != "q6" {
		t.Fatalf("unexpected history window: %+v", items)
	}
	all, _ := s.ListQuestions("e1", 0)
	if len(all) != 7 || all[0].ID != "q0" {
		t.Fatalf("unexpected full history: %d", len(all))
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" math ", "", "math", "chem"})
	if fmt.Sprint(got) != "[math chem]" {
		t.Fatalf("tags = %v", got)
	}
}
