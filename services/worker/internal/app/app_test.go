package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"studyhelper/pkg/domain"
	"studyhelper/pkg/pdfdoc/pdftest"
	"studyhelper/pkg/queue"
	"studyhelper/pkg/storage"
	"studyhelper/pkg/store"
)

type fakeOCR struct {
	pages []int
	texts map[int]string
	err   error
}

func (o *fakeOCR) OCRPages(_ context.Context, pdf []byte, pages []int) (map[int]string, error) {
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		return nil, errors.New("not a pdf")
	}
	o.pages = pages
	return o.texts, o.err
}

type fixture struct {
	app   *App
	store *store.MemoryStore
	files *storage.FileStore
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	f := &fixture{store: store.NewMemoryStore(), files: files}
	cfg.Store = f.store
	cfg.Objects = storage.NewRegistry(domain.ProviderLocal, files)
	f.app, err = New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return f
}

func (f *fixture) addBook(t *testing.T, id string, data []byte) domain.Book {
	t.Helper()
	key := "books/" + id + "/book.pdf"
	if data != nil {
		if _, err := f.files.Put(context.Background(), key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	now := time.Now().UTC()
	book := domain.Book{
		ID:        id,
		Title:     "Biology",
		FileName:  "book.pdf",
		Storage:   domain.StorageLocation{Provider: domain.ProviderLocal, Key: key},
		Status:    domain.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.store.SaveBook(book); err != nil {
		t.Fatalf("save book: %v", err)
	}
	return book
}

func TestProcessExtractsPages(t *testing.T) {
	f := newFixture(t, Config{})
	f.addBook(t, "b1", pdftest.Build("Photosynthesis basics", "Chlorophyll absorbs light"))

	if err := f.app.Process(context.Background(), queue.Job{ID: "j1", BookID: "b1", Attempts: 1, MaxAttempts: 3}); err != nil {
		t.Fatalf("process: %v", err)
	}
	book, _, _ := f.store.GetBook("b1")
	if book.Status != domain.StatusReady || book.TotalPages != 2 {
		t.Fatalf("book after processing = %+v", book)
	}
	page, ok, err := f.store.GetPage("b1", 2)
	if err != nil || !ok || !strings.Contains(page.Text, "Chlorophyll") {
		t.Fatalf("page 2 = %+v, %v, %v", page, ok, err)
	}
}

func TestProcessFillsEmptyPagesWithOCR(t *testing.T) {
	ocr := &fakeOCR{texts: map[int]string{2: "  scanned   diagram "}}
	f := newFixture(t, Config{OCR: ocr})
	f.addBook(t, "b1", pdftest.Build("Cover", "", "Index"))

	if err := f.app.Process(context.Background(), queue.Job{ID: "j1", BookID: "b1", Attempts: 1, MaxAttempts: 3}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(ocr.pages) != 1 || ocr.pages[0] != 2 {
		t.Fatalf("ocr pages = %v", ocr.pages)
	}
	page, _, _ := f.store.GetPage("b1", 2)
	if page.Text != "scanned diagram" {
		t.Fatalf("ocr text = %q", page.Text)
	}
}

func TestProcessOCRErrorKeepsPagesEmpty(t *testing.T) {
	ocr := &fakeOCR{err: errors.New("vision quota")}
	f := newFixture(t, Config{OCR: ocr})
	f.addBook(t, "b1", pdftest.Build("Cover", ""))

	if err := f.app.Process(context.Background(), queue.Job{ID: "j1", BookID: "b1", Attempts: 1, MaxAttempts: 3}); err != nil {
		t.Fatalf("ocr failure must not fail the job: %v", err)
	}
	book, _, _ := f.store.GetBook("b1")
	if book.Status != domain.StatusReady {
		t.Fatalf("status = %s", book.Status)
	}
}

func TestProcessFailureMarksBookOnFinalAttempt(t *testing.T) {
	f := newFixture(t, Config{})
	f.addBook(t, "b1", nil)

	err := f.app.Process(context.Background(), queue.Job{ID: "j1", BookID: "b1", Attempts: 1, MaxAttempts: 2})
	if err == nil {
		t.Fatalf("expected error for missing stored file")
	}
	book, _, _ := f.store.GetBook("b1")
	if book.Status != domain.StatusProcessing {
		t.Fatalf("status before final attempt = %s", book.Status)
	}

	if err := f.app.Process(context.Background(), queue.Job{ID: "j1", BookID: "b1", Attempts: 2, MaxAttempts: 2}); err == nil {
		t.Fatalf("expected error on final attempt")
	}
	book, _, _ = f.store.GetBook("b1")
	if book.Status != domain.StatusFailed || book.ErrorMessage == "" {
		t.Fatalf("book after final attempt = %+v", book)
	}
}

func TestProcessRejectsOversizedAndInvalidFiles(t *testing.T) {
	f := newFixture(t, Config{MaxFileBytes: 64})
	f.addBook(t, "big", pdftest.Build("Too long for the limit"))
	err := f.app.Process(context.Background(), queue.Job{ID: "j1", BookID: "big", Attempts: 1, MaxAttempts: 1})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}

	g := newFixture(t, Config{})
	g.addBook(t, "txt", []byte("plain text, not a pdf"))
	err = g.app.Process(context.Background(), queue.Job{ID: "j2", BookID: "txt", Attempts: 1, MaxAttempts: 1})
	if err == nil {
		t.Fatalf("expected error for non-pdf")
	}
	book, _, _ := g.store.GetBook("txt")
	if book.Status != domain.StatusFailed {
		t.Fatalf("status = %s", book.Status)
	}
}

func TestProcessDropsDeletedBook(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.app.Process(context.Background(), queue.Job{ID: "j1", BookID: "gone"}); err != nil {
		t.Fatalf("deleted book should drop the job, got %v", err)
	}
}
