package queue

import (
	"sync"

	"github.com/grillbaer/data-logger/internal/domain"
	"github.com/grillbaer/data-logger/internal/ports"
)

// MemQueue is a bounded in-memory queue that preserves FIFO ordering.
// A full queue rejects new readings (drop-newest); the enqueuing side
// counts the drop so a slow consumer can never apply backpressure onto
// the polling loop.
type MemQueue struct {
	mu   sync.Mutex
	data []ports.QueuedReading
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	return &MemQueue{
		data: make([]ports.QueuedReading, 0, capacity),
		cap:  capacity,
	}
}

func (q *MemQueue) Enqueue(sourceID string, r domain.Reading) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, ports.QueuedReading{SourceID: sourceID, Reading: r})
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.QueuedReading {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]ports.QueuedReading, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.ReadingQueue = (*MemQueue)(nil)
