package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const fileStoreVersion = 1

// fileDocument is the on-disk layout. Values are kept as text so the JSON
// payloads stay readable in the YAML file.
type fileDocument struct {
	Version int               `yaml:"version"`
	Entries map[string]string `yaml:"entries"`
}

// FileStore persists entries to a single YAML file. Every write rewrites the
// file through a temp file and rename, so a crash leaves the previous version.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// OpenFileStore loads path if it exists, creating parent directories otherwise.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: failed to create %s: %w", filepath.Dir(path), err)
	}

	s := &FileStore{path: path, entries: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("store: failed to read %s: %w", path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: failed to parse %s: %w", path, err)
	}
	if doc.Version > fileStoreVersion {
		return nil, fmt.Errorf("store: %s has unsupported version %d", path, doc.Version)
	}
	if doc.Entries != nil {
		s.entries = doc.Entries
	}
	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.entries[key]
	s.entries[key] = string(value)
	if err := s.flushLocked(); err != nil {
		if had {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Remove(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, k := range keys {
		if _, ok := s.entries[k]; ok {
			delete(s.entries, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.flushLocked()
}

func (s *FileStore) RemovePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	data, err := yaml.Marshal(&fileDocument{Version: fileStoreVersion, Entries: s.entries})
	if err != nil {
		return fmt.Errorf("store: failed to marshal entries: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: failed to replace %s: %w", s.path, err)
	}
	return nil
}
