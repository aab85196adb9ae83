// Path: internal/service/storage.go
package service

import (
	"context"

	"chanbroker/internal/domain"
)

// ChannelCatalog persists the names of created channels so they can be
// recreated after a restart.
type ChannelCatalog interface {
	// Save inserts the record, or replaces the one with the same name.
	Save(ctx context.Context, record domain.ChannelRecord) error

	// List returns every record, oldest first.
	List(ctx context.Context) ([]domain.ChannelRecord, error)
}
