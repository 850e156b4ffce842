package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"studyhelper/internal/bootstrap"
	"studyhelper/pkg/domain"
	"studyhelper/pkg/export"
	"studyhelper/pkg/queue"
	"studyhelper/pkg/store"
)

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := st.SaveBook(domain.Book{ID: "book-1", Title: "Cell Biology", UploaderID: "u-1", Status: domain.StatusFailed, ErrorMessage: "boom", CreatedAt: now}); err != nil {
		t.Fatalf("save book: %v", err)
	}
	highlights := []domain.Highlight{
		{ID: "h-2", BookID: "book-1", UserID: "u-1", PageNumber: 7, Text: "mitochondria", Color: domain.DefaultHighlightColor, CreatedAt: now.Add(time.Minute)},
		{ID: "h-1", BookID: "book-1", UserID: "u-1", PageNumber: 2, Text: "ribosome", Note: "review", Color: domain.DefaultHighlightColor, CreatedAt: now},
		{ID: "h-3", BookID: "book-1", UserID: "u-2", PageNumber: 3, Text: "someone else", Color: domain.DefaultHighlightColor, CreatedAt: now},
	}
	for _, h := range highlights {
		if err := st.SaveHighlight(h); err != nil {
			t.Fatalf("save highlight: %v", err)
		}
	}
	if err := st.SaveExplanation(domain.AIExplanation{ID: "e-1", HighlightID: "h-1", BookID: "book-1", UserID: "u-1", Explanation: "Protein factory.", CreatedAt: now}); err != nil {
		t.Fatalf("save explanation: %v", err)
	}
	return st
}

func TestExportHighlightsCSV(t *testing.T) {
	st := seedStore(t)
	var buf bytes.Buffer
	n, err := exportHighlights(st, &buf, "book-1", "u-1", export.FormatCSV)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header plus 2", len(records))
	}
	if records[1][0] != "2" || records[1][1] != "ribosome" || records[1][4] != "Protein factory." {
		t.Fatalf("first row = %v", records[1])
	}
	if records[2][0] != "7" || records[2][4] != "" {
		t.Fatalf("second row = %v", records[2])
	}
}

func TestExportHighlightsXLSX(t *testing.T) {
	st := seedStore(t)
	var buf bytes.Buffer
	if _, err := exportHighlights(st, &buf, "book-1", "u-1", export.FormatXLSX); err != nil {
		t.Fatalf("export: %v", err)
	}
	// xlsx is a zip archive
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Fatalf("xlsx output is not a zip archive")
	}
}

func TestExportHighlightsUnknownBook(t *testing.T) {
	st := seedStore(t)
	if _, err := exportHighlights(st, &bytes.Buffer{}, "missing", "u-1", export.FormatCSV); err == nil {
		t.Fatalf("expected error for unknown book")
	}
}

type closeFailFile struct {
	bytes.Buffer
}

func (*closeFailFile) Close() error { return errors.New("disk full") }

func TestExportHighlightsToFile(t *testing.T) {
	st := seedStore(t)
	path := filepath.Join(t.TempDir(), "notes.csv")
	n, err := exportHighlightsToFile(st, path, "book-1", "u-1", export.FormatCSV)
	if err != nil || n != 2 {
		t.Fatalf("export = %d, %v", n, err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "ribosome") {
		t.Fatalf("file content = %q, %v", data, err)
	}
}

func TestExportHighlightsToFileReportsCloseError(t *testing.T) {
	st := seedStore(t)
	orig := createFile
	t.Cleanup(func() { createFile = orig })
	createFile = func(string) (io.WriteCloser, error) { return &closeFailFile{}, nil }

	_, err := exportHighlightsToFile(st, "notes.csv", "book-1", "u-1", export.FormatCSV)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v, want close failure", err)
	}
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, string, string) (queue.Job, error) {
	return queue.Job{}, errors.New("redis down")
}

func TestReprocessBookEnqueues(t *testing.T) {
	st := seedStore(t)
	srv := miniredis.RunT(t)
	jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{Addr: srv.Addr(), Stream: "test:books"})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() { _ = jobs.Close() })

	job, err := reprocessBook(context.Background(), st, jobs, " book-1 ")
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if job.BookID != "book-1" || job.Reason != queue.ReasonReprocess {
		t.Fatalf("job = %+v", job)
	}
	book, _, _ := st.GetBook("book-1")
	if book.Status != domain.StatusQueued || book.ErrorMessage != "" {
		t.Fatalf("book status = %q (%q), want queued", book.Status, book.ErrorMessage)
	}
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	n, err := rdb.XLen(context.Background(), "test:books").Result()
	if err != nil {
		t.Fatalf("stream length: %v", err)
	}
	if n != 1 {
		t.Fatalf("stream entries = %d, want 1", n)
	}
}

func TestReprocessBookEnqueueFailure(t *testing.T) {
	st := seedStore(t)
	if _, err := reprocessBook(context.Background(), st, failingQueue{}, "book-1"); err == nil {
		t.Fatalf("expected enqueue error")
	}
	book, _, _ := st.GetBook("book-1")
	if book.Status != domain.StatusFailed {
		t.Fatalf("book status = %q, want failed", book.Status)
	}
}

func TestReprocessBookMissing(t *testing.T) {
	if _, err := reprocessBook(context.Background(), store.NewMemoryStore(), failingQueue{}, "nope"); err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestLoadConfigReadsApiFile(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("STORE_DRIVER", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := strings.Join([]string{
		"port: \"8080\"",
		"redisAddr: localhost:6379",
		"queueStream: books:test",
		"storeDriver: memory",
		"aiProvider: groq",
	}, "\n")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.QueueStream != "books:test" || cfg.StoreConfig.Driver() != bootstrap.DriverMemory {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for postgres without databaseURL")
	}
}

func TestRootRegistersSubcommands(t *testing.T) {
	want := map[string]bool{"migrate": false, "reprocess": false, "export-highlights": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("subcommand %s not registered", name)
		}
	}
}
