// Path: internal/storage/memory_storage.go
package storage

import (
	"context"
	"sort"
	"sync"

	"chanbroker/internal/domain"
)

// MemoryChannelCatalog keeps channel records for the life of the process.
// It is used when no database is configured.
type MemoryChannelCatalog struct {
	mu      sync.RWMutex
	records map[string]domain.ChannelRecord
}

// NewMemoryChannelCatalog creates an empty in-memory catalog.
func NewMemoryChannelCatalog() *MemoryChannelCatalog {
	return &MemoryChannelCatalog{
		records: make(map[string]domain.ChannelRecord),
	}
}

// Save implements the ChannelCatalog interface.
func (s *MemoryChannelCatalog) Save(ctx context.Context, record domain.ChannelRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Name] = record
	return nil
}

// List implements the ChannelCatalog interface.
func (s *MemoryChannelCatalog) List(ctx context.Context) ([]domain.ChannelRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.ChannelRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Name < records[j].Name
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}
