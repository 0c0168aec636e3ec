package datalogger

import (
	"github.com/grillbaer/data-logger/internal/domain"
	"github.com/grillbaer/data-logger/internal/ports"
)

// Aliases so embedders never have to import internal packages.
type (
	Reading       = domain.Reading
	Source        = domain.Source
	Status        = domain.Status
	QueuedReading = ports.QueuedReading
	Driver        = ports.Driver
	Publisher     = ports.Publisher
	BatchSink     = ports.BatchSink
	ReadingStore  = ports.ReadingStore
	ReadingLog    = ports.ReadingLog
	Observability = ports.Observability
	Field         = ports.Field
)

const (
	StatusOK    = domain.StatusOK
	StatusError = domain.StatusError
	StatusStale = domain.StatusStale

	// NoValueText is shown in place of a value for non-ok readings.
	NoValueText = domain.NoValueText
)

// ReadingBatchFunc is invoked with ordered batches dequeued from a fan-out
// queue.
type ReadingBatchFunc func([]QueuedReading) error
