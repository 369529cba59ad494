// Package store persists each named collection as a single JSON document
// on disk. Reads return point-in-time snapshots; writes replace the whole
// file atomically (temp file, fsync, rename) under a per-collection lock.
// All file I/O in the system goes through this package.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrCorrupt is returned when a collection file exists but does not hold
// valid JSON. Callers should restore from the most recent backup.
var ErrCorrupt = errors.New("collection is not valid JSON")

type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Dir returns the data directory the store operates on.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *Store) lock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// ReadInto loads a snapshot of the collection into v. A missing file
// leaves v untouched (callers start from their zero value); a present but
// unparseable file yields ErrCorrupt.
func (s *Store) ReadInto(name string, v interface{}) error {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("collection %s: %w", name, ErrCorrupt)
	}
	return nil
}

// Write replaces the collection with v under the collection write lock.
func (s *Store) Write(name string, v interface{}) error {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()
	return s.writeLocked(name, v)
}

// Update runs fn inside the collection write lock and persists its result.
// fn must re-read current contents (via ReadInto) to form a proper
// read-modify-write section; returning a nil value skips the write.
func (s *Store) Update(name string, fn func() (interface{}, error)) error {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	v, err := fn()
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return s.writeLocked(name, v)
}

func (s *Store) writeLocked(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
