package license

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"licensegate/internal/infrastructure"
)

// Store persists the cached validation and the offline state. Load methods
// return a nil cache or zero state when nothing has been saved yet.
type Store interface {
	LoadCache(ctx context.Context) (*CachedValidation, error)
	SaveCache(ctx context.Context, c *CachedValidation) error
	ClearCache(ctx context.Context) error
	LoadState(ctx context.Context) (OfflineState, error)
	SaveState(ctx context.Context, s OfflineState) error
}

// FileStore keeps both records as signed JSON files. Writes go through a
// temporary file and a rename so a crash never leaves half a file behind.
type FileStore struct {
	cachePath string
	statePath string
	signer    *CacheSigner
	mu        sync.Mutex
}

// NewFileStore creates a store writing to the given paths
func NewFileStore(cachePath, statePath string, signer *CacheSigner) *FileStore {
	return &FileStore{cachePath: cachePath, statePath: statePath, signer: signer}
}

// LoadCache reads the cache file
func (s *FileStore) LoadCache(ctx context.Context) (*CachedValidation, error) {
	var c CachedValidation
	found, err := s.read(s.cachePath, &c)
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

// SaveCache replaces the cache file
func (s *FileStore) SaveCache(ctx context.Context, c *CachedValidation) error {
	if c == nil {
		return s.ClearCache(ctx)
	}
	return s.write(s.cachePath, c)
}

// ClearCache removes the cache file
func (s *FileStore) ClearCache(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove license cache: %w", err)
	}
	return nil
}

// LoadState reads the offline state file
func (s *FileStore) LoadState(ctx context.Context) (OfflineState, error) {
	var st OfflineState
	if _, err := s.read(s.statePath, &st); err != nil {
		return OfflineState{}, err
	}
	return st, nil
}

// SaveState replaces the offline state file
func (s *FileStore) SaveState(ctx context.Context, st OfflineState) error {
	return s.write(s.statePath, st)
}

func (s *FileStore) read(path string, v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := s.signer.Open(data, v); err != nil {
		return false, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func (s *FileStore) write(path string, v interface{}) error {
	data, err := s.signer.Seal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return infrastructure.WriteFileAtomic(path, data, 0600)
}

// MemoryStore keeps the records in memory
type MemoryStore struct {
	mu    sync.Mutex
	cache *CachedValidation
	state OfflineState
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadCache returns a copy of the stored cache
func (s *MemoryStore) LoadCache(ctx context.Context) (*CachedValidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Clone(), nil
}

// SaveCache stores a copy of c
func (s *MemoryStore) SaveCache(ctx context.Context, c *CachedValidation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = c.Clone()
	return nil
}

// ClearCache drops the cache
func (s *MemoryStore) ClearCache(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	return nil
}

// LoadState returns the stored state
func (s *MemoryStore) LoadState(ctx context.Context) (OfflineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// SaveState stores st
func (s *MemoryStore) SaveState(ctx context.Context, st OfflineState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	return nil
}
