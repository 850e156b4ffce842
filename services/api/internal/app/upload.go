package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"studyhelper/internal/util"
	"studyhelper/pkg/domain"
	"studyhelper/pkg/pdfdoc"
	"studyhelper/pkg/queue"
	"studyhelper/pkg/storage"
	"studyhelper/pkg/store"
)

// UploadInput is a multipart PDF upload with its metadata. An empty Provider
// selects the default storage backend.
type UploadInput struct {
	FileName    string
	Body        io.Reader
	Size        int64
	Title       string
	Author      string
	Description string
	Tags        []string
	IsPublic    bool
	Provider    string
}

// UploadBook stores a PDF, records the book and queues processing. The stored
// object is removed again when the book cannot be saved.
func (a *App) UploadBook(ctx context.Context, user domain.User, in UploadInput) (domain.Book, error) {
	fileName := filepath.Base(strings.TrimSpace(in.FileName))
	if fileName == "" || fileName == "." {
		return domain.Book{}, invalid(errors.New("file: cannot be blank"))
	}
	if in.Size > a.maxUploadBytes {
		return domain.Book{}, ErrFileTooLarge
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return domain.Book{}, ErrUnsupportedFile
	}
	body := bufio.NewReaderSize(in.Body, 1024)
	head, _ := body.Peek(1024)
	if !pdfdoc.IsPDF(head) {
		return domain.Book{}, ErrUnsupportedFile
	}

	objects, err := a.objectStore(in.Provider)
	if err != nil {
		return domain.Book{}, err
	}
	key := buildStorageKey(uuid.NewString(), fileName)
	limited := &countingReader{r: io.LimitReader(body, a.maxUploadBytes+1)}
	obj, err := objects.Put(ctx, key, limited, in.Size, "application/pdf")
	if err != nil {
		return domain.Book{}, fmt.Errorf("save file: %w", err)
	}
	logger := util.LoggerFromContext(ctx).With("provider", obj.Provider, "key", obj.Key)
	if limited.n > a.maxUploadBytes {
		if err := objects.Delete(ctx, obj.Key); err != nil {
			logger.Warn("delete oversized upload failed", "err", err)
		}
		return domain.Book{}, ErrFileTooLarge
	}
	size := obj.Size
	if size <= 0 {
		size = limited.n
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = titleFromName(fileName)
	}
	now := a.now()
	book := domain.Book{
		ID:            util.NewID(),
		Title:         title,
		Author:        strings.TrimSpace(in.Author),
		Description:   strings.TrimSpace(in.Description),
		FileName:      fileName,
		Storage:       obj.Location(),
		FileSize:      size,
		UploaderID:    user.ID,
		UploaderEmail: user.Email,
		IsPublic:      in.IsPublic,
		Tags:          store.NormalizeTags(in.Tags),
		Status:        domain.StatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.SaveBook(book); err != nil {
		if derr := objects.Delete(ctx, obj.Key); derr != nil {
			logger.Warn("rollback stored file failed", "err", derr)
		}
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	logger.Info("book uploaded", "book_id", book.ID, "size", size)
	return a.enqueue(ctx, book, queue.ReasonUpload)
}

func (a *App) objectStore(provider string) (storage.ObjectStore, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		objects, err := a.objects.Default()
		if err != nil {
			return nil, ErrStorageProvider
		}
		return objects, nil
	}
	p, ok := domain.ParseStorageProvider(provider)
	if !ok {
		return nil, invalid(errors.New("provider: must be one of local, minio, cloudinary, gdrive"))
	}
	objects, err := a.objects.Get(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageProvider, p)
	}
	return objects, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func titleFromName(name string) string {
	base := filepath.Base(name)
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	title = strings.Join(strings.FieldsFunc(title, func(r rune) bool { return r == '_' || r == ' ' }), " ")
	if title == "" {
		return "Untitled book"
	}
	return title
}

func buildStorageKey(id, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "book.pdf"
	}
	return path.Join("books", id, name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
