package status

import (
	"sync"

	"github.com/codebuildervaibhav/podflow/internal/types"
)

// Store holds the latest record per episode id. Writes replace the whole
// record; there is no merge.
type Store interface {
	Set(episodeID string, record types.JobRecord)
	Get(episodeID string) types.JobRecord
}

// MemoryStore is the process-lifetime Store. Entries are never evicted.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]types.JobRecord
}

// NewMemoryStore creates an empty in-memory status store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]types.JobRecord),
	}
}

// Set stores record as the latest state of episodeID
func (s *MemoryStore) Set(episodeID string, record types.JobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[episodeID] = record
}

// Get returns the latest record, or the not_found sentinel for unknown ids.
func (s *MemoryStore) Get(episodeID string) types.JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[episodeID]
	if !ok {
		return types.NotFoundRecord()
	}
	return record
}
