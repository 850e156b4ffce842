package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"studyhelper/pkg/domain"
)

var (
	// ErrNotFound is returned by Open when the object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrProviderNotConfigured is returned for providers missing from the registry.
	ErrProviderNotConfigured = errors.New("storage provider not configured")
)

// Object describes a stored file.
type Object struct {
	Provider domain.StorageProvider
	Key      string
	URL      string
	Size     int64
}

// Location converts the object into the location persisted on a book.
func (o Object) Location() domain.StorageLocation {
	return domain.StorageLocation{Provider: o.Provider, Key: o.Key, URL: o.URL}
}

// ObjectStore provides access to one storage backend.
type ObjectStore interface {
	Provider() domain.StorageProvider
	// Put stores r under key. Backends that assign their own identifiers
	// (Drive) return that identifier as Object.Key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// URL returns a browser-usable download URL, or "" when the file must be
	// streamed through the API.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Registry maps providers to configured stores.
type Registry struct {
	mu        sync.RWMutex
	stores    map[domain.StorageProvider]ObjectStore
	preferred domain.StorageProvider
}

// NewRegistry builds a registry whose default is preferred when registered.
func NewRegistry(preferred domain.StorageProvider, stores ...ObjectStore) *Registry {
	r := &Registry{stores: make(map[domain.StorageProvider]ObjectStore), preferred: preferred}
	for _, s := range stores {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the store for its provider.
func (r *Registry) Register(s ObjectStore) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[s.Provider()] = s
}

// Get returns the store for provider.
func (r *Registry) Get(provider domain.StorageProvider) (ObjectStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}
	return s, nil
}

// Default returns the preferred store, falling back to the first configured
// provider in a stable order.
func (r *Registry) Default() (ObjectStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.stores[r.preferred]; ok {
		return s, nil
	}
	providers := r.providersLocked()
	if len(providers) == 0 {
		return nil, ErrProviderNotConfigured
	}
	return r.stores[providers[0]], nil
}

// Providers lists configured providers in a stable order.
func (r *Registry) Providers() []domain.StorageProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providersLocked()
}

func (r *Registry) providersLocked() []domain.StorageProvider {
	out := make([]domain.StorageProvider, 0, len(r.stores))
	for p := range r.stores {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
