// Package jobstore keeps the in-memory registry of completed batch
// archives awaiting retrieval. The store is shared between the
// orchestrator (insert), the retrieval handler (read) and the janitor
// (delete); all operations are atomic with respect to each other.
package jobstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
)

// Entry is the persisted view of a batch job after its run completes.
// An entry exists if and only if its archive file exists on disk (or is
// in the process of being deleted).
type Entry struct {
	ArchivePath string
	WorkDir     string
	CreatedAt   time.Time
}

// Store is a mutex-guarded jobId -> Entry map.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Put registers a finished job. A duplicate id is a logic error.
func (s *Store) Put(jobID string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[jobID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateJob, jobID)
	}
	s.entries[jobID] = e
	return nil
}

// Get looks up a job by id.
func (s *Store) Get(jobID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[jobID]
	if !exists {
		return Entry{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	return e, nil
}

// Delete removes a job entry. Deleting an unknown id is a no-op.
func (s *Store) Delete(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, jobID)
}

// Len returns the number of registered entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IDs returns a snapshot of the registered job ids.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}
