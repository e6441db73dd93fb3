package state

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is a durable map of thread id -> Record backed by a single JSON
// file. Every mutation rewrites the whole file and syncs it before
// returning: losing state after a restart would mean duplicate task
// creation or a lost conversation, so durability wins over throughput.
type Store struct {
	path string

	mu      sync.Mutex
	records map[string]Record
}

// NewStore loads the backing file. A missing or corrupt file starts the
// store empty rather than failing the process.
func NewStore(path string) *Store {
	s := &Store{
		path:    path,
		records: map[string]Record{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[StateStore] Failed to read %s, starting empty: %v", path, err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		log.Printf("[StateStore] Corrupt state file %s, starting empty: %v", path, err)
		s.records = map[string]Record{}
	}
	return s
}

// Get returns the record for a thread, or an empty init record.
func (s *Store) Get(threadID string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[strings.TrimSpace(threadID)]
	if !ok {
		return emptyRecord()
	}
	return rec
}

// Update merges a mutation into the thread's record, stamps updated_at and
// persists synchronously.
func (s *Store) Update(threadID string, mutate func(*Record)) error {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return fmt.Errorf("thread id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		rec = emptyRecord()
	}
	mutate(&rec)
	rec.UpdatedAt = nowStamp()
	s.records[id] = rec
	return s.persistLocked()
}

// Clear removes the thread's record entirely, returning the thread to an
// unmanaged state, and persists.
func (s *Store) Clear(threadID string) error {
	id := strings.TrimSpace(threadID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return nil
	}
	delete(s.records, id)
	return s.persistLocked()
}

// Len reports the number of managed threads.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// persistLocked rewrites the whole store atomically: write to a temp file
// in the same directory, sync, then rename over the target so a crash
// mid-write never truncates existing state.
func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".thread_state-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
