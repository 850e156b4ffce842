package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"studyhelper/internal/util"
	"studyhelper/pkg/domain"
	"studyhelper/pkg/queue"
	"studyhelper/pkg/storage"
	"studyhelper/pkg/store"
)

// BookPage is one page of the book catalogue.
type BookPage struct {
	Books      []domain.Book     `json:"books"`
	Pagination domain.Pagination `json:"pagination"`
}

// ListBooks returns public books plus the viewer's own, or only the viewer's
// with Mine set.
func (a *App) ListBooks(viewer domain.User, in ListBooksInput) (BookPage, error) {
	page, limit := domain.NormalizePage(in.Page, in.Limit)
	if in.Mine && viewer.ID == "" {
		return BookPage{Books: []domain.Book{}, Pagination: domain.NewPagination(page, limit, 0)}, nil
	}
	books, total, err := a.store.ListBooks(store.BookQuery{
		Page:     page,
		Limit:    limit,
		Search:   in.Search,
		Tag:      in.Tag,
		ViewerID: viewer.ID,
		OnlyMine: in.Mine,
	})
	if err != nil {
		return BookPage{}, fmt.Errorf("list books: %w", err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	return BookPage{Books: books, Pagination: domain.NewPagination(page, limit, total)}, nil
}

// GetBook returns a book the viewer may read.
func (a *App) GetBook(viewer domain.User, id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(strings.TrimSpace(id))
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if !book.ReadableBy(viewer.ID) {
		return domain.Book{}, ErrBookForbidden
	}
	return book, nil
}

// ownedBook returns a book only its uploader may change.
func (a *App) ownedBook(user domain.User, id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(strings.TrimSpace(id))
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if user.ID == "" || book.UploaderID != user.ID {
		return domain.Book{}, ErrBookForbidden
	}
	return book, nil
}

// RegisterBook records a PDF that already lives in a configured storage
// backend and queues it for processing.
func (a *App) RegisterBook(ctx context.Context, user domain.User, in RegisterBookInput) (domain.Book, error) {
	if err := in.Validate(); err != nil {
		return domain.Book{}, invalid(err)
	}
	provider, _ := domain.ParseStorageProvider(strings.ToLower(strings.TrimSpace(in.Storage.Provider)))
	if _, err := a.objects.Get(provider); err != nil {
		return domain.Book{}, fmt.Errorf("%w: %s", ErrStorageProvider, provider)
	}
	loc := domain.StorageLocation{
		Provider: provider,
		Key:      strings.TrimSpace(in.Storage.Key),
		URL:      strings.TrimSpace(in.Storage.URL),
	}
	taken, err := a.store.CountBooksAt(loc)
	if err != nil {
		return domain.Book{}, fmt.Errorf("check storage location: %w", err)
	}
	if taken > 0 {
		return domain.Book{}, fmt.Errorf("%w: %s/%s", ErrStorageInUse, loc.Provider, loc.Key)
	}
	now := a.now()
	book := domain.Book{
		ID:            util.NewID(),
		Title:         strings.TrimSpace(in.Title),
		Author:        strings.TrimSpace(in.Author),
		Description:   strings.TrimSpace(in.Description),
		FileName:      strings.TrimSpace(in.FileName),
		Storage:       loc,
		FileSize:      in.FileSize,
		UploaderID:    user.ID,
		UploaderEmail: user.Email,
		IsPublic:      in.IsPublic,
		Tags:          store.NormalizeTags(in.Tags),
		Status:        domain.StatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return a.enqueue(ctx, book, queue.ReasonRegister)
}

// enqueue queues processing for a saved book and marks it failed when the
// queue is unavailable.
func (a *App) enqueue(ctx context.Context, book domain.Book, reason string) (domain.Book, error) {
	if _, err := a.queue.Enqueue(ctx, book.ID, reason); err != nil {
		util.LoggerFromContext(ctx).Error("enqueue book processing failed", "book_id", book.ID, "err", err)
		_ = a.store.SetBookStatus(book.ID, domain.StatusFailed, ErrEnqueue.Error())
		return domain.Book{}, fmt.Errorf("%w: %v", ErrEnqueue, err)
	}
	return book, nil
}

// UpdateBook applies a partial metadata update. Only the uploader may edit.
func (a *App) UpdateBook(user domain.User, id string, in UpdateBookInput) (domain.Book, error) {
	if err := in.Validate(); err != nil {
		return domain.Book{}, invalid(err)
	}
	book, err := a.ownedBook(user, id)
	if err != nil {
		return domain.Book{}, err
	}
	if in.Title != nil {
		book.Title = strings.TrimSpace(*in.Title)
	}
	if in.Author != nil {
		book.Author = strings.TrimSpace(*in.Author)
	}
	if in.Description != nil {
		book.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsPublic != nil {
		book.IsPublic = *in.IsPublic
	}
	if in.Tags != nil {
		book.Tags = store.NormalizeTags(*in.Tags)
	}
	book.UpdatedAt = a.now()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// DeleteBook removes the book with everything attached to it, then the
// stored file unless another book still points at it. A failed file delete
// is logged, not returned.
func (a *App) DeleteBook(ctx context.Context, user domain.User, id string) error {
	book, err := a.ownedBook(user, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteBook(book.ID); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	logger := util.LoggerFromContext(ctx).With("book_id", book.ID, "provider", book.Storage.Provider)
	refs, err := a.store.CountBooksAt(book.Storage)
	if err != nil {
		logger.Warn("stored file left behind", "err", err)
		return nil
	}
	if refs > 0 {
		logger.Info("stored file kept, still referenced", "books", refs)
		return nil
	}
	objects, err := a.objects.Get(book.Storage.Provider)
	if err != nil {
		logger.Warn("stored file left behind", "err", err)
		return nil
	}
	if err := objects.Delete(ctx, book.Storage.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("delete stored file failed", "err", err)
	}
	return nil
}

// Reprocess re-queues processing of a book. Only the uploader may do this.
func (a *App) Reprocess(ctx context.Context, user domain.User, id string) (domain.Book, error) {
	book, err := a.ownedBook(user, id)
	if err != nil {
		return domain.Book{}, err
	}
	if err := a.store.SetBookStatus(book.ID, domain.StatusQueued, ""); err != nil {
		return domain.Book{}, fmt.Errorf("set book status: %w", err)
	}
	book.Status = domain.StatusQueued
	book.ErrorMessage = ""
	return a.enqueue(ctx, book, queue.ReasonReprocess)
}

// GetPage returns the extracted text of one page.
func (a *App) GetPage(viewer domain.User, bookID string, number int) (domain.Page, error) {
	if number < 1 {
		return domain.Page{}, invalid(errors.New("page: must be no less than 1"))
	}
	book, err := a.GetBook(viewer, bookID)
	if err != nil {
		return domain.Page{}, err
	}
	page, ok, err := a.store.GetPage(book.ID, number)
	if err != nil {
		return domain.Page{}, fmt.Errorf("get page: %w", err)
	}
	if !ok {
		return domain.Page{}, ErrPageNotFound
	}
	return page, nil
}

// BookFile is either a redirect to the storage backend or a stream of the
// PDF itself.
type BookFile struct {
	RedirectURL string
	Body        io.ReadCloser
	FileName    string
	Size        int64
}

// OpenBookFile resolves how the viewer fetches a book's PDF.
func (a *App) OpenBookFile(ctx context.Context, viewer domain.User, id string) (BookFile, error) {
	book, err := a.GetBook(viewer, id)
	if err != nil {
		return BookFile{}, err
	}
	objects, err := a.objects.Get(book.Storage.Provider)
	if err != nil {
		if book.Storage.URL != "" {
			return BookFile{RedirectURL: book.Storage.URL, FileName: book.FileName}, nil
		}
		return BookFile{}, fmt.Errorf("%w: %s", ErrStorageProvider, book.Storage.Provider)
	}
	url, err := objects.URL(ctx, book.Storage.Key, a.urlExpiry)
	if err != nil {
		return BookFile{}, fmt.Errorf("book file url: %w", err)
	}
	if url != "" {
		return BookFile{RedirectURL: url, FileName: book.FileName}, nil
	}
	body, err := objects.Open(ctx, book.Storage.Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return BookFile{}, fmt.Errorf("%w: stored file missing", ErrBookNotFound)
		}
		return BookFile{}, fmt.Errorf("open book file: %w", err)
	}
	return BookFile{Body: body, FileName: book.FileName, Size: book.FileSize}, nil
}

// FileToken is a short-lived credential for GET /api/books/{id}/file.
type FileToken struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	URL       string `json:"url"`
}

// IssueFileToken lets the PDF viewer fetch a book without an Authorization header.
func (a *App) IssueFileToken(viewer domain.User, id string) (FileToken, error) {
	if a.fileTokens == nil {
		return FileToken{}, ErrFileTokensUnavailable
	}
	book, err := a.GetBook(viewer, id)
	if err != nil {
		return FileToken{}, err
	}
	token, expires, err := a.fileTokens.Sign(book.ID, viewer.ID)
	if err != nil {
		return FileToken{}, fmt.Errorf("sign file token: %w", err)
	}
	return FileToken{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
		URL:       "/api/books/" + book.ID + "/file?token=" + token,
	}, nil
}

// FileTokenViewer verifies a file token for bookID and returns the user it
// was issued to.
func (a *App) FileTokenViewer(token, bookID string) (domain.User, error) {
	if a.fileTokens == nil {
		return domain.User{}, ErrFileTokensUnavailable
	}
	grant, err := a.fileTokens.Verify(token, bookID)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidFileToken, err)
	}
	return domain.User{ID: grant.UserID}, nil
}
