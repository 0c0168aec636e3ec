package ports

// Observability is the sink for logs and metrics emitted by the pipeline.
type Observability interface {
	LogDebug(msg string, fields ...Field)
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)

	// LogErrorRateLimited logs like LogError but suppresses repeats of the
	// same key within a short interval, for faults that recur every cycle.
	LogErrorRateLimited(key, msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	SetGauge(name string, v float64)
	ObserveLatency(name string, seconds float64)
}

// Field is a structured log field.
type Field struct {
	Key   string
	Value any
}
