package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"studyhelper/pkg/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	key := "books/abc/notes.pdf"

	obj, err := fs.Put(ctx, key, strings.NewReader("%PDF-1.4 body"), 13, "application/pdf")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if obj.Key != key || obj.Size != 13 || obj.Provider != domain.ProviderLocal {
		t.Fatalf("unexpected object: %+v", obj)
	}

	rc, err := fs.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "%PDF-1.4 body" {
		t.Fatalf("content = %q", data)
	}
	if url, err := fs.URL(ctx, key, time.Minute); err != nil || url != "" {
		t.Fatalf("local url = %q, %v", url, err)
	}

	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := fs.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "books")); !os.IsNotExist(err) {
		t.Fatalf("empty folders should be pruned, stat err = %v", err)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("deleting a missing object should succeed: %v", err)
	}
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	for _, key := range []string{"../outside.pdf", "books/../../etc/passwd", "", ".."} {
		if _, err := fs.Put(context.Background(), key, strings.NewReader("x"), 1, ""); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

type stubStore struct {
	provider domain.StorageProvider
}

func (s stubStore) Provider() domain.StorageProvider { return s.provider }
func (s stubStore) Put(context.Context, string, io.Reader, int64, string) (Object, error) {
	return Object{}, nil
}
func (s stubStore) Open(context.Context, string) (io.ReadCloser, error) { return nil, ErrNotFound }
func (s stubStore) URL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}
func (s stubStore) Delete(context.Context, string) error { return nil }

func TestRegistry(t *testing.T) {
	reg := NewRegistry(domain.ProviderCloudinary, stubStore{domain.ProviderLocal}, stubStore{domain.ProviderMinio})

	def, err := reg.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if def.Provider() != domain.ProviderLocal {
		t.Fatalf("fallback default = %s, want local", def.Provider())
	}

	reg.Register(stubStore{domain.ProviderCloudinary})
	def, _ = reg.Default()
	if def.Provider() != domain.ProviderCloudinary {
		t.Fatalf("preferred default = %s", def.Provider())
	}

	if _, err := reg.Get(domain.ProviderDrive); !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected not configured error, got %v", err)
	}
	if got := len(reg.Providers()); got != 3 {
		t.Fatalf("providers = %d", got)
	}

	empty := NewRegistry(domain.ProviderLocal)
	if _, err := empty.Default(); !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("empty registry default error = %v", err)
	}
}

func TestCloudinaryDeliveryURL(t *testing.T) {
	c := &CloudinaryStore{cloudName: "demo", folder: "studyhelper"}
	publicID := c.publicID("/books/abc/my notes.pdf")
	if publicID != "studyhelper/books/abc/my notes.pdf" {
		t.Fatalf("public id = %q", publicID)
	}
	want := "https://res.cloudinary.com/demo/raw/upload/studyhelper/books/abc/my%20notes.pdf"
	if got := c.deliveryURL(publicID); got != want {
		t.Fatalf("delivery url = %q, want %q", got, want)
	}
}
