// Path: internal/domain/models.go
package domain

import "time"

// ChannelRecord is the persisted form of a created channel. Only the name is
// kept: payloads are never stored.
type ChannelRecord struct {
	Name      string    `json:"name" bson:"_id"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// NewChannelRecord stamps a record for a channel created now.
func NewChannelRecord(name string) ChannelRecord {
	return ChannelRecord{Name: name, CreatedAt: time.Now().UTC()}
}
