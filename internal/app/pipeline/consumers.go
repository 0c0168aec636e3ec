package pipeline

import (
	"context"
	"time"

	"github.com/grillbaer/data-logger/internal/adapters/observability"
	"github.com/grillbaer/data-logger/internal/ports"
)

// RunConsumer works one fan-out queue in batches until the context ends,
// then keeps draining for at most the policy's drain grace so buffered
// readings are not thrown away on shutdown.
func RunConsumer(ctx context.Context, name string, q ports.ReadingQueue, pol ports.Policy, obs ports.Observability, fn func(batch []ports.QueuedReading)) {
	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(pol.DrainGrace)
			for time.Now().Before(deadline) {
				batch := q.DequeueBatch(pol.MaxBatchSize)
				if len(batch) == 0 {
					return
				}
				fn(batch)
			}
			obs.LogInfo("consumer drain grace expired",
				ports.Field{Key: "consumer", Value: name},
				ports.Field{Key: "left", Value: q.Len()})
			return
		default:
		}

		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			time.Sleep(pol.IdleSleep)
			continue
		}
		fn(batch)
	}
}

// LogAppender persists each reading of a batch to the durable log. A failed
// append loses that one record; the reading has already reached the store.
func LogAppender(log ports.ReadingLog, obs ports.Observability) func(batch []ports.QueuedReading) {
	return func(batch []ports.QueuedReading) {
		for _, q := range batch {
			if err := log.Append(q.SourceID, q.Reading); err != nil {
				obs.IncCounter(observability.MetricLogAppendFailures, 1)
				obs.LogErrorRateLimited("log-append", "reading log append failed", err,
					ports.Field{Key: "source", Value: q.SourceID})
			}
		}
	}
}

// PublisherFunc forwards each reading of a batch to the broker publisher.
// Delivery is best-effort; the publisher counts its own drops.
func PublisherFunc(pub ports.Publisher) func(batch []ports.QueuedReading) {
	return func(batch []ports.QueuedReading) {
		for _, q := range batch {
			pub.Publish(q.SourceID, q.Reading)
		}
	}
}

// ArchiveWriter hands whole batches to the SQL sink. A failed batch is
// logged and dropped; the durable log still holds the records.
func ArchiveWriter(sink ports.BatchSink, obs ports.Observability) func(batch []ports.QueuedReading) {
	return func(batch []ports.QueuedReading) {
		if err := sink.WriteBatch(batch); err != nil {
			obs.IncCounter(observability.MetricArchiveBatchFailures, 1)
			obs.LogErrorRateLimited("archive-write", "archive batch write failed", err,
				ports.Field{Key: "sink", Value: sink.Name()},
				ports.Field{Key: "size", Value: len(batch)})
		}
	}
}
