package ports

import "github.com/grillbaer/data-logger/internal/domain"

// QueuedReading is one reading buffered for a downstream consumer.
type QueuedReading struct {
	SourceID string
	Reading  domain.Reading
}

// ReadingQueue is a bounded FIFO buffer between the poll scheduler and one
// background consumer. Enqueue never blocks; it returns false when the queue
// is full and the caller counts the drop. Per-source order is preserved.
type ReadingQueue interface {
	Enqueue(sourceID string, r domain.Reading) bool
	DequeueBatch(max int) []QueuedReading
	Len() int
}
