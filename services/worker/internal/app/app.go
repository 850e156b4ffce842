package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"studyhelper/internal/util"
	"studyhelper/pkg/ai"
	"studyhelper/pkg/domain"
	"studyhelper/pkg/pdfdoc"
	"studyhelper/pkg/queue"
	"studyhelper/pkg/storage"
	"studyhelper/pkg/store"
)

const (
	defaultMaxFileBytes = 200 << 20
	defaultOCRMaxPages  = 50
	defaultOCRTimeout   = 2 * time.Minute
)

var ErrFileTooLarge = errors.New("stored file exceeds worker limit")

// Config holds runtime dependencies for the worker.
type Config struct {
	Store   store.Store
	Objects *storage.Registry
	// OCR recognises pages without a text layer; nil disables it.
	OCR          ai.PDFPageOCR
	MaxFileBytes int64
	OCRMaxPages  int
	OCRTimeout   time.Duration
}

// App processes book jobs: page count, page text, status.
type App struct {
	store        store.Store
	objects      *storage.Registry
	ocr          ai.PDFPageOCR
	maxFileBytes int64
	ocrMaxPages  int
	ocrTimeout   time.Duration
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object storage registry required")
	}
	a := &App{
		store:        cfg.Store,
		objects:      cfg.Objects,
		ocr:          cfg.OCR,
		maxFileBytes: cfg.MaxFileBytes,
		ocrMaxPages:  cfg.OCRMaxPages,
		ocrTimeout:   cfg.OCRTimeout,
	}
	if a.maxFileBytes <= 0 {
		a.maxFileBytes = defaultMaxFileBytes
	}
	if a.ocrMaxPages <= 0 {
		a.ocrMaxPages = defaultOCRMaxPages
	}
	if a.ocrTimeout <= 0 {
		a.ocrTimeout = defaultOCRTimeout
	}
	return a, nil
}

// Process handles one queue job. A failed job is retried by the queue; on
// the final attempt the book is marked failed with the error.
func (a *App) Process(ctx context.Context, job queue.Job) error {
	logger := util.LoggerFromContext(ctx).With("job_id", job.ID, "book_id", job.BookID, "attempt", job.Attempts)
	ctx = util.ContextWithLogger(ctx, logger)

	book, ok, err := a.store.GetBook(job.BookID)
	if err != nil {
		return a.fail(ctx, job, fmt.Errorf("load book: %w", err))
	}
	if !ok {
		logger.Warn("book deleted before processing, dropping job")
		return nil
	}
	if err := a.store.SetBookStatus(book.ID, domain.StatusProcessing, ""); err != nil {
		return a.fail(ctx, job, fmt.Errorf("mark processing: %w", err))
	}
	doc, err := a.inspect(ctx, book)
	if err != nil {
		return a.fail(ctx, job, err)
	}
	for i := range doc.Pages {
		doc.Pages[i].BookID = book.ID
	}
	if err := a.store.ReplacePages(book.ID, doc.Pages); err != nil {
		return a.fail(ctx, job, fmt.Errorf("save pages: %w", err))
	}
	if err := a.store.SetBookPages(book.ID, doc.TotalPages); err != nil {
		return a.fail(ctx, job, fmt.Errorf("save page count: %w", err))
	}
	if err := a.store.SetBookStatus(book.ID, domain.StatusReady, ""); err != nil {
		return a.fail(ctx, job, fmt.Errorf("mark ready: %w", err))
	}
	logger.Info("book processed", "pages", doc.TotalPages, "empty_pages", len(doc.EmptyPages()))
	return nil
}

func (a *App) fail(ctx context.Context, job queue.Job, err error) error {
	logger := util.LoggerFromContext(ctx)
	if !job.FinalAttempt() {
		logger.Warn("book processing failed, will retry", "err", err)
		return err
	}
	logger.Error("book processing failed", "err", err)
	if serr := a.store.SetBookStatus(job.BookID, domain.StatusFailed, err.Error()); serr != nil {
		logger.Error("mark book failed", "err", serr)
	}
	return err
}

// inspect copies the stored PDF into a temp file, bounded by maxFileBytes,
// and reads its pages.
func (a *App) inspect(ctx context.Context, book domain.Book) (pdfdoc.Document, error) {
	objects, err := a.objects.Get(book.Storage.Provider)
	if err != nil {
		return pdfdoc.Document{}, fmt.Errorf("storage %s: %w", book.Storage.Provider, err)
	}
	body, err := objects.Open(ctx, book.Storage.Key)
	if err != nil {
		return pdfdoc.Document{}, fmt.Errorf("open stored file: %w", err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "studyhelper-*.pdf")
	if err != nil {
		return pdfdoc.Document{}, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := io.Copy(tmp, io.LimitReader(body, a.maxFileBytes+1))
	if err != nil {
		return pdfdoc.Document{}, fmt.Errorf("download stored file: %w", err)
	}
	if n > a.maxFileBytes {
		return pdfdoc.Document{}, ErrFileTooLarge
	}
	doc, err := pdfdoc.Inspect(tmp, n)
	if err != nil {
		return pdfdoc.Document{}, err
	}
	a.recognise(ctx, tmp.Name(), &doc)
	return doc, nil
}

// recognise fills pages without a text layer through OCR. OCR failures keep
// the pages empty.
func (a *App) recognise(ctx context.Context, path string, doc *pdfdoc.Document) {
	if a.ocr == nil {
		return
	}
	empty := doc.EmptyPages()
	if len(empty) == 0 {
		return
	}
	if len(empty) > a.ocrMaxPages {
		empty = empty[:a.ocrMaxPages]
	}
	logger := util.LoggerFromContext(ctx)
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("read pdf for ocr failed", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, a.ocrTimeout)
	defer cancel()
	texts, err := a.ocr.OCRPages(ctx, data, empty)
	if err != nil {
		logger.Warn("ocr failed", "pages", len(empty), "err", err)
		return
	}
	for i := range doc.Pages {
		if text, ok := texts[doc.Pages[i].Number]; ok {
			doc.Pages[i].Text = pdfdoc.Normalize(text)
		}
	}
	logger.Info("ocr filled pages", "requested", len(empty), "recognised", len(texts))
}
