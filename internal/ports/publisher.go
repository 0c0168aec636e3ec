package ports

import (
	"context"

	"github.com/grillbaer/data-logger/internal/domain"
)

// Publisher delivers readings to a remote broker, best-effort and
// at-most-once. Publish must never block on a broken connection; while
// disconnected readings are dropped and counted. Reconnecting is the
// implementation's job and must retry indefinitely with bounded backoff.
type Publisher interface {
	// Start begins connection maintenance. It returns immediately; the
	// first connect attempt happens in the background.
	Start(ctx context.Context) error

	// Publish sends one reading. A send failure or missing connection is
	// not an error to the caller.
	Publish(sourceID string, r domain.Reading)

	Connected() bool

	// Close stops connection maintenance and releases the network handle,
	// waiting no longer than the context allows.
	Close(ctx context.Context) error
}
