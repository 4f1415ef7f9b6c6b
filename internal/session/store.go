package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is the narrow seam to the session-record system. The wider platform
// owns session records; this subsystem only reads routing information and
// keeps the embedded AuthState consistent with flow and credential
// transitions.
type Store interface {
	// Get returns the record for a session key, or (nil, nil) when the
	// session is unknown (e.g. pruned).
	Get(sessionKey string) (*Record, error)

	// Put inserts or replaces a record.
	Put(record *Record) error
}

// FileStore persists session records as YAML files, one per session, under a
// dedicated directory. It is the implementation the daemon uses.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a file-backed session store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("session store directory must be set")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session storage directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// recordPath maps a session key to a filesystem-safe file name.
func (s *FileStore) recordPath(sessionKey string) string {
	hash := sha256.Sum256([]byte(sessionKey))
	return filepath.Join(s.dir, hex.EncodeToString(hash[:16])+".yaml")
}

// Get implements Store.
func (s *FileStore) Get(sessionKey string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.recordPath(sessionKey))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var record Record
	if err := yaml.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &record, nil
}

// Put implements Store.
func (s *FileStore) Put(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	path := s.recordPath(record.SessionKey)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to persist session record: %w", err)
	}
	return nil
}

// MemoryStore keeps session records in memory. Used by tests and by
// embedders that already have their own durable session system.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get implements Store.
func (s *MemoryStore) Get(sessionKey string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[sessionKey]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

// Put implements Store.
func (s *MemoryStore) Put(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.records[record.SessionKey] = &copied
	return nil
}
