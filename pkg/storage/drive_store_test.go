package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestDriveStore(t *testing.T, handler http.HandlerFunc) *DriveStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store, err := NewDriveStore(context.Background(), DriveOptions{
		Endpoint:   srv.URL + "/",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("new drive store: %v", err)
	}
	return store
}

func writeDriveNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `{"error":{"code":404,"message":"File not found"}}`)
}

func TestDriveStoreOpen(t *testing.T) {
	store := newTestDriveStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/files/file-1") && r.URL.Query().Get("alt") == "media":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = io.WriteString(w, "%PDF-1.7")
		default:
			writeDriveNotFound(w)
		}
	})

	rc, err := store.Open(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "%PDF-1.7" {
		t.Fatalf("content = %q", data)
	}

	if _, err := store.Open(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDriveStoreDeleteIgnoresMissing(t *testing.T) {
	var deleted []string
	store := newTestDriveStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "unexpected", http.StatusBadRequest)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/files/file-1") {
			deleted = append(deleted, "file-1")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeDriveNotFound(w)
	})

	if err := store.Delete(context.Background(), "file-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("deleting a missing file should succeed: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("deleted = %v", deleted)
	}
}
