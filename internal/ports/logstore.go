package ports

import (
	"time"

	"github.com/grillbaer/data-logger/internal/domain"
)

// ReadingLog durably persists readings in retention-bounded partitions and
// replays recent history on startup. Appends are serialized by the
// implementation; expiry removes whole partitions, never single records.
type ReadingLog interface {
	// Append persists one record. The record must survive a process crash
	// once Append returns without error.
	Append(sourceID string, r domain.Reading) error

	// LoadRecent returns all records newer than the window, grouped by
	// source id, oldest first within each source.
	LoadRecent(now time.Time, window time.Duration) (map[string][]domain.Reading, error)

	// SweepExpired deletes partitions strictly older than the retention
	// horizon and returns how many were removed. Calling it twice without
	// intervening writes removes nothing the second time.
	SweepExpired(now time.Time) (int, error)

	Close() error
}
