package ports

import "time"

// Policy controls scheduling cadence and fan-out buffering.
type Policy struct {
	PollInterval time.Duration
	ReadTimeout  time.Duration

	QueueCap     int
	MaxBatchSize int
	IdleSleep    time.Duration

	// DrainGrace bounds how long consumers keep working off queued
	// readings after shutdown has been requested.
	DrainGrace time.Duration
}
