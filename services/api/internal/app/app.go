package app

import (
	"context"
	"errors"
	"time"

	"studyhelper/internal/filetoken"
	"studyhelper/pkg/ai"
	"studyhelper/pkg/queue"
	"studyhelper/pkg/storage"
	"studyhelper/pkg/store"
)

const (
	defaultMaxUploadBytes = 50 * 1024 * 1024
	defaultContextWindow  = 1500
	defaultHistoryLimit   = 5
	defaultURLExpiry      = 15 * time.Minute
)

// JobQueue enqueues book processing jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, bookID, reason string) (queue.Job, error)
}

// Config holds runtime dependencies for the core application.
type Config struct {
	Store      store.Store
	Objects    *storage.Registry
	Queue      JobQueue
	Generator  ai.TextGenerator
	Extractor  ai.TextExtractor
	FileTokens *filetoken.Signer

	MaxUploadBytes int64
	// ContextWindow is the number of page-text characters sent as context
	// when a request carries none.
	ContextWindow int
	// HistoryLimit caps earlier follow-up questions included in a prompt.
	HistoryLimit int
	URLExpiry    time.Duration
}

// App implements the StudyHelper use cases on top of the store, object
// storage, the processing queue and the AI providers.
type App struct {
	store      store.Store
	objects    *storage.Registry
	queue      JobQueue
	generator  ai.TextGenerator
	extractor  ai.TextExtractor
	fileTokens *filetoken.Signer

	maxUploadBytes int64
	contextWindow  int
	historyLimit   int
	urlExpiry      time.Duration
	now            func() time.Time
}

// New constructs the application. Store, Objects and Queue are required;
// AI providers and file tokens are optional.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object storage registry required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("job queue required")
	}
	a := &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		queue:          cfg.Queue,
		generator:      cfg.Generator,
		extractor:      cfg.Extractor,
		fileTokens:     cfg.FileTokens,
		maxUploadBytes: cfg.MaxUploadBytes,
		contextWindow:  cfg.ContextWindow,
		historyLimit:   cfg.HistoryLimit,
		urlExpiry:      cfg.URLExpiry,
		now:            func() time.Time { return time.Now().UTC() },
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = defaultMaxUploadBytes
	}
	if a.contextWindow <= 0 {
		a.contextWindow = defaultContextWindow
	}
	if a.historyLimit <= 0 {
		a.historyLimit = defaultHistoryLimit
	}
	if a.urlExpiry <= 0 {
		a.urlExpiry = defaultURLExpiry
	}
	return a, nil
}

// MaxUploadBytes is the largest accepted upload.
func (a *App) MaxUploadBytes() int64 { return a.maxUploadBytes }

// Providers lists the configured storage providers.
func (a *App) Providers() []string {
	providers := a.objects.Providers()
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = string(p)
	}
	return out
}
