package ports

import (
	"time"

	"github.com/grillbaer/data-logger/internal/domain"
)

// ReadingStore holds the latest reading and a bounded recent history per
// source. The poll scheduler is the sole writer; the presentation layer and
// the runtime read concurrently. Implementations must never expose a
// partially updated reading and must keep critical sections short.
type ReadingStore interface {
	// Register adds a source entry. Called once per source at startup,
	// before any readers or writers exist.
	Register(src domain.Source)

	// Update replaces the latest reading and appends it to the history
	// ring, evicting entries older than the retention window.
	Update(sourceID string, r domain.Reading)

	// Seed appends replayed history without touching the latest slot.
	Seed(sourceID string, history []domain.Reading)

	// Latest returns the most recent reading, marked stale when it is
	// older than the source's staleness window. ok is false for unknown
	// sources and sources that were never polled.
	Latest(sourceID string) (r domain.Reading, ok bool)

	// History returns readings since the given instant, oldest first.
	// The returned slice is a copy and safe for the caller to keep.
	History(sourceID string, since time.Time) []domain.Reading

	// Sources lists the registered sources in configuration order.
	Sources() []domain.Source

	// SampleCount reports total history occupancy across sources.
	SampleCount() int
}
