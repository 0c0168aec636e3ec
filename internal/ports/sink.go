package ports

// BatchSink consumes ordered batches of readings dequeued from a fan-out
// queue, e.g. the SQL archive. A failed batch is logged and dropped; the
// durable history is the reading log's job, not the sink's.
type BatchSink interface {
	WriteBatch(batch []QueuedReading) error
	Name() string
}
