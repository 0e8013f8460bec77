package issuer

import (
	"context"
	"sort"
	"sync"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/license"
)

// Registry stores issued licenses by canonical key
type Registry interface {
	Get(ctx context.Context, key string) (*license.License, error)
	// Update applies fn to a copy of the stored license and saves the copy
	// only when fn succeeds.
	Update(ctx context.Context, key string, fn func(*license.License) error) (*license.License, error)
	Put(ctx context.Context, l *license.License) error
	List(ctx context.Context) ([]*license.License, error)
}

// MemoryRegistry is a Registry held in memory
type MemoryRegistry struct {
	mu       sync.RWMutex
	licenses map[string]*license.License
}

// NewMemoryRegistry creates a registry holding licenses
func NewMemoryRegistry(licenses ...*license.License) *MemoryRegistry {
	r := &MemoryRegistry{licenses: make(map[string]*license.License, len(licenses))}
	for _, l := range licenses {
		r.licenses[l.Key] = l.Clone()
	}
	return r
}

// Get returns a copy of the license stored under key
func (r *MemoryRegistry) Get(_ context.Context, key string) (*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.licenses[key]
	if !ok {
		return nil, apperrors.ErrLicenseNotFound
	}
	return l.Clone(), nil
}

// Update implements Registry
func (r *MemoryRegistry) Update(_ context.Context, key string, fn func(*license.License) error) (*license.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.licenses[key]
	if !ok {
		return nil, apperrors.ErrLicenseNotFound
	}
	c := l.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	r.licenses[key] = c
	return c.Clone(), nil
}

// Put stores a copy of l, replacing any license with the same key
func (r *MemoryRegistry) Put(_ context.Context, l *license.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.licenses[l.Key] = l.Clone()
	return nil
}

// List returns copies of all licenses ordered by key
func (r *MemoryRegistry) List(_ context.Context) ([]*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*license.License, 0, len(r.licenses))
	for _, l := range r.licenses {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
