package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed event. Seq preserves commit order.
type EventRecord struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	ID        uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Type      string    `gorm:"size:64;index"`
	Payload   string    `gorm:"type:text"`
	IndexedAt time.Time `gorm:"index"`
}

// EventAttribute indexes one attribute of an event for lookups by value.
type EventAttribute struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	EventSeq uint64 `gorm:"index"`
	Key      string `gorm:"column:attr_key;size:64;index:idx_event_attr"`
	Value    string `gorm:"column:attr_value;size:255;index:idx_event_attr"`
}

// AutoMigrate creates or updates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{}, &EventAttribute{})
}
