package freshness

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// OutputTarget records a successfully written stylesheet.
type OutputTarget struct {
	TemplateID   string    `json:"template_id"`
	OutputPath   string    `json:"output_path"`
	ModTime      time.Time `json:"mod_time"`
	ContentHash  string    `json:"content_hash"`
	SourceDigest string    `json:"source_digest"`
}

// Store keeps OutputTargets between passes. Implementations are owned by a
// single orchestrator; the mutex only guards readers such as reporters.
type Store interface {
	Get(templateID string) (OutputTarget, bool)
	Put(target OutputTarget)
	Delete(templateID string)
	All() []OutputTarget
	Save() error
}

// MemoryStore is a Store that lives for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	targets map[string]OutputTarget
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{targets: make(map[string]OutputTarget)}
}

// Get returns the target recorded for templateID.
func (s *MemoryStore) Get(templateID string) (OutputTarget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[templateID]
	return t, ok
}

// Put records target, replacing any previous one for the same template.
func (s *MemoryStore) Put(target OutputTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[target.TemplateID] = target
}

// Delete forgets the target of templateID.
func (s *MemoryStore) Delete(templateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, templateID)
}

// All returns every target sorted by template id.
func (s *MemoryStore) All() []OutputTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]OutputTarget, 0, len(s.targets))
	for _, t := range s.targets {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TemplateID < all[j].TemplateID })
	return all
}

// Save is a no-op for the memory store.
func (s *MemoryStore) Save() error {
	return nil
}

// cacheFile is the on-disk layout of a FileStore.
type cacheFile struct {
	Version int            `json:"version"`
	Targets []OutputTarget `json:"targets"`
}

const cacheVersion = 1

// CacheFileName is the file a FileStore writes inside its cache location.
const CacheFileName = "targets.json"

// FileStore is a MemoryStore persisted as JSON inside a cache directory.
type FileStore struct {
	*MemoryStore
	path string
}

// OpenFileStore loads the store kept in dir, or starts empty when there is
// none. A cache written by an incompatible version is discarded.
func OpenFileStore(dir string) (*FileStore, error) {
	s := &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        filepath.Join(dir, CacheFileName),
	}

	// #nosec G304 - cache location comes from configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read cache %s: %w", s.path, err)
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil || cf.Version != cacheVersion {
		// stale or corrupt cache: rebuild from scratch
		return s, nil
	}
	for _, t := range cf.Targets {
		s.MemoryStore.Put(t)
	}
	return s, nil
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the store atomically (temp file + rename).
func (s *FileStore) Save() error {
	data, err := json.MarshalIndent(cacheFile{Version: cacheVersion, Targets: s.All()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, CacheFileName+".*")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}
